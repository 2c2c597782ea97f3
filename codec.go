package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"patchmcp/internal/formats"
	"patchmcp/internal/params"
	"patchmcp/internal/sysex"
)

func init() {
	emitCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write raw SysEx here instead of hex to stdout")
	emitCmd.Flags().BoolVar(&flagBankDump, "bank-dump", false, "input is a JSON array of patches, emit one bank dump")
	requestCmd.Flags().BoolVar(&flagAll, "all", false, "request the whole bank in one message")
	requestCmd.Flags().IntVar(&flagBank, "bank", 0, "bank")
	requestCmd.Flags().IntVar(&flagNumber, "number", 0, "program number")
	rootCmd.AddCommand(formatsCmd, schemaCmd, recognizeCmd, parseCmd, emitCmd, requestCmd)
}

var (
	flagOut      string
	flagBankDump bool
	flagAll      bool
	flagBank     int
	flagNumber   int
)

// readInput reads a file argument, or stdin when it is missing or "-".
func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

// decodeSysex accepts raw SysEx bytes or their hex text form.
func decodeSysex(data []byte) ([]byte, error) {
	if len(data) > 0 && data[0] == sysex.Start {
		return data, nil
	}
	text := strings.NewReplacer(" ", "", "\n", "", "\r", "", "\t", "", "0x", "", ",", "").Replace(string(data))
	out, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("input is neither raw SysEx nor hex: %w", err)
	}
	return out, nil
}

// patchJSON is one decoded patch in command output.
type patchJSON struct {
	Format string        `json:"format"`
	Patch  *params.Store `json:"patch"`
}

func printJSON(w io.Writer, v any) error {
	asJson, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(asJson))
	return err
}

// decodePatch reads a patch for f from JSON, bare or as printed by parse.
// Unknown keys are logged and skipped.
func decodePatch(f formats.Format, data []byte) (*params.Store, error) {
	var wrapped struct {
		Patch json.RawMessage `json:"patch"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Patch) > 0 {
		data = wrapped.Patch
	}
	s, unknown, err := params.UnmarshalInto(f.Schema(), data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal patch JSON: %w", err)
	}
	for _, k := range unknown {
		log.Printf("[%s] %v: %q, skipping", f.ID(), sysex.ErrUnknownParameterKey, k)
	}
	return s, nil
}

// emitBank encodes a JSON array of patches, as printed by parse, as one
// bank dump of f.
func emitBank(f formats.Format, data []byte) ([]byte, error) {
	b, ok := f.(formats.BankFormat)
	if !ok {
		return nil, fmt.Errorf("%s has no bank dump", f.ID())
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("bank JSON must be an array of patches: %w", err)
	}
	patches := make([]*params.Store, len(items))
	for i, raw := range items {
		s, err := decodePatch(f, raw)
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", i, err)
		}
		patches[i] = s
	}
	return b.EmitBank(patches)
}

func requestBank(f formats.Format) ([]byte, error) {
	b, ok := f.(formats.BankRequester)
	if !ok {
		return nil, fmt.Errorf("%s has no bank request", f.ID())
	}
	return b.RequestBank(), nil
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		for _, id := range a.reg.IDs() {
			f, _ := a.reg.Get(id)
			var shapes []string
			for _, sh := range f.Shapes() {
				shapes = append(shapes, fmt.Sprintf("%s(%d)", sh.ID, sh.Length))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-44s %s\n", id, f.Description(), strings.Join(shapes, " "))
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the parameter definitions of --format",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		f, err := a.format()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), f.Schema().Defs())
	},
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize [file]",
	Short: "Identify the messages in a SysEx file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		data, err := readInput(args)
		if err != nil {
			return err
		}
		blob, err := decodeSysex(data)
		if err != nil {
			return err
		}
		for i, msg := range sysex.Split(blob) {
			_, shape, err := a.reg.Recognize(msg)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %v\n", i, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s (%d bytes)\n", i, shape, len(msg))
		}
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Decode SysEx to JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		data, err := readInput(args)
		if err != nil {
			return err
		}
		blob, err := decodeSysex(data)
		if err != nil {
			return err
		}
		fs, patches, err := a.reg.DecodeAll(blob)
		if err != nil {
			return err
		}
		out := make([]patchJSON, len(patches))
		for i, p := range patches {
			out[i] = patchJSON{Format: fs[i].ID(), Patch: p}
		}
		if len(out) == 1 {
			return printJSON(cmd.OutOrStdout(), out[0])
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var emitCmd = &cobra.Command{
	Use:   "emit [file]",
	Short: "Encode a JSON patch for --format as SysEx",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		data, err := readInput(args)
		if err != nil {
			return err
		}
		f, err := a.format()
		if err != nil {
			return err
		}
		var msg []byte
		if flagBankDump {
			msg, err = emitBank(f, data)
		} else {
			var s *params.Store
			if s, err = decodePatch(f, data); err == nil {
				msg, err = f.Emit(s)
			}
		}
		if err != nil {
			return err
		}
		if flagOut != "" {
			return os.WriteFile(flagOut, msg, 0644)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), sysex.Hex(msg))
		return err
	},
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Print the dump request message for --format",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		f, err := a.format()
		if err != nil {
			return err
		}
		var req []byte
		if flagAll {
			req, err = requestBank(f)
		} else {
			req, err = f.RequestDump(flagBank, flagNumber)
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), sysex.Hex(req))
		return err
	},
}
