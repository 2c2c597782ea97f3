package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver

	"patchmcp/internal/config"
	"patchmcp/internal/formats"
	"patchmcp/internal/midiio"
	"patchmcp/internal/patch"
	"patchmcp/internal/session"
)

var (
	flagConfig  string
	flagFormat  string
	flagPort    string
	flagDevice  int
	flagChannel int
	flagStrict  bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "patchmcp",
	Short: "Synthesizer patch <-> SysEx codec",
	Long: `patchmcp converts synthesizer patches between named parameters (JSON)
and vendor SysEx dumps, talks to the instrument over MIDI and exposes the
same operations as MCP tools and an HTTP API.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: user config dir)")
	pf.StringVarP(&flagFormat, "format", "f", "", "format ID, see 'formats'")
	pf.StringVarP(&flagPort, "port", "p", "", "MIDI port name fragment")
	pf.IntVar(&flagDevice, "device", -1, "SysEx device ID")
	pf.IntVar(&flagChannel, "channel", -1, "0-based MIDI channel for note audition")
	pf.BoolVar(&flagStrict, "strict", false, "reject messages with a bad checksum")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "dump sent and received bytes to stderr")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}

// app is the per-invocation state every command works from.
type app struct {
	cfg     *config.Config
	profile config.Profile
	reg     *formats.Registry
}

func loadApp(cmd *cobra.Command) (*app, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFrom(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	p := cfg.Current()
	if flagFormat != "" {
		p.Format = flagFormat
	}
	if flagPort != "" {
		p.Port = flagPort
	}
	if flagDevice >= 0 {
		p.Device = byte(flagDevice)
	}
	if flagChannel >= 0 {
		p.Channel = uint8(flagChannel)
	}
	if cmd.Flags().Changed("strict") {
		cfg.Strict = flagStrict
	}

	opts := patch.Options{Strict: cfg.Strict, Device: p.Device}
	return &app{cfg: cfg, profile: p, reg: formats.New(opts)}, nil
}

func (a *app) format() (formats.Format, error) {
	return a.reg.Get(a.profile.Format)
}

// connect opens the instrument's MIDI ports.
func (a *app) connect() (*midiio.Port, func(), error) {
	outs, ins := midiio.Ports()
	log.Println("Available MIDI outputs:")
	log.Print(outs)
	log.Println("Available MIDI inputs:")
	log.Print(ins)

	port, closer, err := midiio.OpenByName(a.profile.Port)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open MIDI port %q: %w", a.profile.Port, err)
	}
	port.Timeout = a.cfg.Timeout()
	if flagVerbose {
		port.Dump = os.Stderr
	}
	return port, closer, nil
}

// session opens a session on the current format, optionally connected.
func (a *app) session(port midiio.Sender) (*session.Session, error) {
	f, err := a.format()
	if err != nil {
		return nil, err
	}
	return session.New(f, port, a.cfg.Debounce()), nil
}
