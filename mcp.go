package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"patchmcp/internal/formats"
	"patchmcp/internal/midiio"
	"patchmcp/internal/session"
	"patchmcp/internal/sysex"
)

var flagOffline bool

func init() {
	mcpCmd.Flags().BoolVar(&flagOffline, "offline", false, "serve codec tools only, without opening MIDI ports")
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve codec and instrument tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		t := &tools{reg: a.reg}
		if !flagOffline {
			port, closer, err := a.connect()
			if err != nil {
				return err
			}
			defer closer()
			sess, err := a.session(port)
			if err != nil {
				return err
			}
			defer sess.Close()
			t.sess, t.notes, t.audition = sess, port, midiio.NewAudition(a.profile.Channel)
			t.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
		}

		log.Println("Starting patch MCP server...")
		if err := server.ServeStdio(newMCPServer(t)); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

// tools holds what the MCP handlers work on. sess and notes are nil when
// no instrument is connected.
type tools struct {
	reg      *formats.Registry
	sess     *session.Session
	notes    midiio.NoteSender
	audition *midiio.Audition
	rand     *rand.Rand
}

func newMCPServer(t *tools) *server.MCPServer {
	s := server.NewMCPServer(
		"Patch MCP",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("patch_list-formats",
		mcp.WithDescription("Lists the supported synthesizer patch formats."),
	), t.listFormats)

	s.AddTool(mcp.NewTool("patch_describe-format",
		mcp.WithDescription("Returns the parameter definitions (name, min, max, default) of a format."),
		mcp.WithString("format", mcp.Required(), mcp.Description("Format ID, e.g. waldorf/sound.")),
	), t.describeFormat)

	s.AddTool(mcp.NewTool("patch_parse-sysex",
		mcp.WithDescription("Decodes SysEx (hex) into named parameters. The format is recognized from the message."),
		mcp.WithString("sysex", mcp.Required(), mcp.Description("One or more SysEx messages as hex, e.g. F0 3E 13 ...")),
	), t.parseSysex)

	s.AddTool(mcp.NewTool("patch_emit-sysex",
		mcp.WithDescription("Encodes a patch given as JSON into a SysEx message (hex)."),
		mcp.WithString("format", mcp.Required(), mcp.Description("Format ID.")),
		mcp.WithString("patch-json", mcp.Required(), mcp.Description(`Patch JSON: {"text": {"name": "..."}, "values": {"param": 1}}. Missing parameters take their defaults.`)),
	), t.emitSysex)

	if t.sess == nil {
		return s
	}

	s.AddTool(mcp.NewTool("patch_get-patch",
		mcp.WithDescription("Retrieves a patch from the synthesizer and makes it the current patch."),
		mcp.WithNumber("bank", mcp.Required(), mcp.Description("Bank number (0-based).")),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("Program number (0-based).")),
	), t.getPatch)

	s.AddTool(mcp.NewTool("patch_send-patch",
		mcp.WithDescription("Sends a patch to the synthesizer and makes it the current patch."),
		mcp.WithString("patch-json", mcp.Required(), mcp.Description("The patch data in JSON format, as returned by patch_get-patch.")),
		mcp.WithNumber("bank", mcp.Description("Target bank, defaults to the patch's own.")),
		mcp.WithNumber("number", mcp.Description("Target program number, defaults to the patch's own.")),
	), t.sendPatch)

	s.AddTool(mcp.NewTool("patch_set-param",
		mcp.WithDescription("Changes one parameter of the current patch; the change is sent to the instrument when the format supports single-parameter messages."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Parameter name.")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("New value within the parameter's range.")),
	), t.setParam)

	s.AddTool(mcp.NewTool("patch_randomize",
		mcp.WithDescription("Randomizes the parameters of the current patch whose names start with a prefix, e.g. osc1_."),
		mcp.WithString("prefix", mcp.Required(), mcp.Description("Parameter name prefix; empty randomizes everything editable.")),
	), t.randomize)

	s.AddTool(mcp.NewTool("patch_play-notes",
		mcp.WithDescription("Plays notes on the synthesizer, e.g. \"C4 E4 r G4\". Without notes a test arpeggio is played."),
		mcp.WithString("notes", mcp.Description("Space separated notes; r is a rest.")),
	), t.playNotes)

	return s
}

func (t *tools) listFormats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling list formats request.")
	type entry struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	var out []entry
	for _, id := range t.reg.IDs() {
		f, _ := t.reg.Get(id)
		out = append(out, entry{ID: id, Description: f.Description()})
	}
	return jsonResult(out)
}

func (t *tools) describeFormat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := t.reg.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(f.Schema().Defs())
}

func (t *tools) parseSysex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling parse request.")
	text, err := request.RequireString("sysex")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blob, err := decodeSysex([]byte(text))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fs, patches, err := t.reg.DecodeAll(blob)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]patchJSON, len(patches))
	for i, p := range patches {
		out[i] = patchJSON{Format: fs[i].ID(), Patch: p}
	}
	return jsonResult(out)
}

func (t *tools) emitSysex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling emit request.")
	id, err := request.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patchJson, err := request.RequireString("patch-json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := t.reg.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s, err := decodePatch(f, []byte(patchJson))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msg, err := f.Emit(s)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(sysex.Hex(msg)), nil
}

func (t *tools) getPatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling get patch request.")
	bank, err := request.RequireInt("bank")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	number, err := request.RequireInt("number")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.sess.Fetch(ctx, bank, number); err != nil {
		return nil, fmt.Errorf("failed to read patch: %w", err)
	}
	return jsonResult(patchJSON{Format: t.sess.Format.ID(), Patch: t.sess.Snapshot()})
}

func (t *tools) sendPatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patchJson, err := request.RequireString("patch-json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	log.Println("[mcp] Sending patch. JSON:", patchJson)

	p, err := decodePatch(t.sess.Format, []byte(patchJson))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.sess.Load(p)
	if bank, number := request.GetInt("bank", -1), request.GetInt("number", -1); bank >= 0 || number >= 0 {
		if err := t.sess.Retarget(bank, number); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if err := t.sess.Write(ctx); err != nil {
		return nil, fmt.Errorf("failed to send patch: %w", err)
	}
	return mcp.NewToolResultText("Patch sent successfully."), nil
}

func (t *tools) setParam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireInt("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.sess.Set(name, value); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.sess.Err(); err != nil {
		return nil, fmt.Errorf("previous parameter send failed: %w", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s = %d", name, value)), nil
}

func (t *tools) randomize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := request.GetString("prefix", "")
	touched := t.sess.Randomize(t.rand, prefix)
	if len(touched) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no editable parameter starts with %q", prefix)), nil
	}
	log.Printf("[mcp] Randomized %d parameters.", len(touched))
	return jsonResult(t.sess.Snapshot())
}

func (t *tools) playNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes := request.GetString("notes", "")
	var err error
	if notes == "" {
		err = t.audition.TestNotes(ctx, t.notes)
	} else {
		err = t.audition.Play(ctx, t.notes, notes)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Notes played successfully."), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	asJson, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %v", err)
	}
	return mcp.NewToolResultText(string(asJson)), nil
}
