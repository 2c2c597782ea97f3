package midiio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gitlab.com/gomidi/midi/v2"
)

// Audition plays short phrases to check a patch after it was sent.
type Audition struct {
	Channel  uint8
	Velocity uint8
	Note     time.Duration
	Gap      time.Duration
}

func NewAudition(channel uint8) *Audition {
	return &Audition{Channel: channel, Velocity: 100, Note: 300 * time.Millisecond, Gap: 60 * time.Millisecond}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TestNotes plays a C major arpeggio.
func (a *Audition) TestNotes(ctx context.Context, s NoteSender) error {
	return a.Play(ctx, s, "C4 E4 G4")
}

// Chord holds notes together for hold.
func (a *Audition) Chord(ctx context.Context, s NoteSender, notes []uint8, hold time.Duration) error {
	for _, n := range notes {
		if err := s.Send(midi.NoteOn(a.Channel, n, a.Velocity)); err != nil {
			return fmt.Errorf("note on failed for %d: %w", n, err)
		}
	}

	err := sleep(ctx, hold)

	for _, n := range notes {
		if offErr := s.Send(midi.NoteOff(a.Channel, n)); offErr != nil {
			return fmt.Errorf("note off failed for %d: %w", n, offErr)
		}
	}
	return err
}

// Play parses notesText ("C4 E4 r G#4") and plays it one note at a time.
func (a *Audition) Play(ctx context.Context, s NoteSender, notesText string) error {
	tokens := strings.FieldsFunc(notesText, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '|'
	})
	if len(tokens) == 0 {
		return fmt.Errorf("no notes provided")
	}

	for _, tok := range tokens {
		n, isRest, err := ParseNote(tok)
		if err != nil {
			return fmt.Errorf("invalid note %q: %w", tok, err)
		}

		if isRest {
			if err := sleep(ctx, a.Note+a.Gap); err != nil {
				return err
			}
			continue
		}

		if err := s.Send(midi.NoteOn(a.Channel, n, a.Velocity)); err != nil {
			return fmt.Errorf("note on failed for %d: %w", n, err)
		}
		waitErr := sleep(ctx, a.Note)
		if err := s.Send(midi.NoteOff(a.Channel, n)); err != nil {
			return fmt.Errorf("note off failed for %d: %w", n, err)
		}
		if waitErr != nil {
			return waitErr
		}
		if err := sleep(ctx, a.Gap); err != nil {
			return err
		}
	}

	return nil
}

// ParseNote reads a note name such as C4, F#3 or Bb2. "r" and "rest" are
// rests.
func ParseNote(tok string) (uint8, bool, error) {
	t := strings.TrimSpace(tok)
	if t == "" {
		return 0, false, fmt.Errorf("empty token")
	}

	if strings.EqualFold(t, "r") || strings.EqualFold(t, "rest") {
		return 0, true, nil
	}

	if len(t) < 2 {
		return 0, false, fmt.Errorf("too short")
	}

	base := strings.ToUpper(string(t[0]))
	accidental := 0
	rest := t[1:]

	switch rest[0] {
	case '#':
		accidental = 1
		rest = rest[1:]
	case 'b', 'B':
		accidental = -1
		rest = rest[1:]
	}

	if rest == "" {
		return 0, false, fmt.Errorf("missing octave")
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false, fmt.Errorf("invalid octave: %w", err)
	}

	semitones := map[string]int{"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11}
	semitone, ok := semitones[base]
	if !ok {
		return 0, false, fmt.Errorf("invalid note letter %q", base)
	}

	n := 12*(octave+1) + semitone + accidental
	if n < 0 || n > 127 {
		return 0, false, fmt.Errorf("MIDI note out of range: %d", n)
	}

	return uint8(n), false, nil
}
