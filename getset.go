package main

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	for _, c := range []*cobra.Command{getCmd, setCmd} {
		c.Flags().IntVar(&flagBank, "bank", 0, "bank")
		c.Flags().IntVar(&flagNumber, "number", 0, "program number")
	}
	rootCmd.AddCommand(getCmd, setCmd, paramCmd)
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Read a patch from the instrument and print it as JSON",
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

		s, err := a.session(port)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Fetch(commandContext(cmd), flagBank, flagNumber); err != nil {
			return fmt.Errorf("failed to read patch: %w", err)
		}
		p := s.Snapshot()
		log.Println("Patch name", p.Text("name"))
		return printJSON(cmd.OutOrStdout(), patchJSON{Format: s.Format.ID(), Patch: p})
	},
}

var setCmd = &cobra.Command{
	Use:   "set [file]",
	Short: "Send a JSON patch to the instrument",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		data, err := readInput(args)
		if err != nil {
			return fmt.Errorf("failed to read patch JSON: %w", err)
		}
		f, err := a.format()
		if err != nil {
			return err
		}
		p, err := decodePatch(f, data)
		if err != nil {
			return err
		}

		port, closer, err := a.connect()
		if err != nil {
			return err
		}
		defer closer()

		s, err := a.session(port)
		if err != nil {
			return err
		}
		defer s.Close()
		s.Load(p)
		if bank, number := slotFlags(cmd); bank >= 0 || number >= 0 {
			if err := s.Retarget(bank, number); err != nil {
				return err
			}
		}
		if err := s.Write(commandContext(cmd)); err != nil {
			return fmt.Errorf("failed to send patch: %w", err)
		}
		log.Printf("Sent %s %q", f.ID(), p.Text("name"))
		return nil
	},
}

var paramCmd = &cobra.Command{
	Use:   "param <name> <value>",
	Short: "Change one parameter in the instrument's edit buffer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("value %q: %w", args[1], err)
		}
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		port, closer, err := a.connect()
		if err != nil {
			return err
		}
		defer closer()

		s, err := a.session(port)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Set(args[0], v); err != nil {
			return err
		}
		s.Flush()
		return s.Err()
	},
}

// slotFlags returns --bank and --number, -1 for each one not given.
func slotFlags(cmd *cobra.Command) (bank, number int) {
	bank, number = -1, -1
	if cmd.Flags().Changed("bank") {
		bank = flagBank
	}
	if cmd.Flags().Changed("number") {
		number = flagNumber
	}
	return bank, number
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
