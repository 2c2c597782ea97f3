package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"

	"patchmcp/internal/midiio"
)

var flagHold time.Duration

func init() {
	playCmd.Flags().DurationVar(&flagHold, "hold", 0, "play the notes together as a chord for this long")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play [notes]",
	Short: "Audition the current sound, e.g. play \"C4 E4 r G4\"",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		port, closer, err := a.connect()
		if err != nil {
			return err
		}
		defer closer()

		au := midiio.NewAudition(a.profile.Channel)
		ctx := commandContext(cmd)
		if len(args) == 0 {
			return au.TestNotes(ctx, port)
		}
		text := strings.Join(args, " ")
		if flagHold > 0 {
			return playChord(cmd, au, port, text)
		}
		return au.Play(ctx, port, text)
	},
}

func playChord(cmd *cobra.Command, au *midiio.Audition, port midiio.NoteSender, text string) error {
	var notes []uint8
	for _, tok := range strings.Fields(text) {
		n, rest, err := midiio.ParseNote(tok)
		if err != nil {
			return err
		}
		if !rest {
			notes = append(notes, n)
		}
	}
	if len(notes) == 0 {
		notes = []uint8{midi.C(4)}
	}
	return au.Chord(commandContext(cmd), port, notes, flagHold)
}
