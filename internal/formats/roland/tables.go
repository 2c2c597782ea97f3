package roland

import (
	"fmt"

	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/signed"
)

const (
	ToneSize    = 0x40
	nameLen     = 10
	partials    = 2
	partialBase = 12
	partialSize = 24
)

var (
	bias7  = signed.Bias{Offset: 7}
	bias50 = signed.Bias{Offset: 50}
)

func partial(p int, name string) string { return fmt.Sprintf("p%d_%s", p+1, name) }

func toneLayout() (*params.Schema, *patch.Table) {
	defs := []params.Def{
		params.Fixed("number", Temporary, Tones-1),
		params.Range("structure", 0, 12),
		params.Range("env_mode", 0, 1),
		params.Range("partial_mute", 0, 15).WithDefault(3),
	}
	entries := []patch.Entry{
		patch.TextField("name", 0, nameLen, "", false),
		patch.Field("structure", 10, 0, 4),
		patch.Bits(11, []int{4, 0}, []int{1, 4}, "env_mode", "partial_mute"),
	}

	for p := 0; p < partials; p++ {
		b := partialBase + p*partialSize
		n := func(name string) string { return partial(p, name) }
		defs = append(defs,
			params.Range(n("coarse"), 0, 96).WithDefault(48),
			params.Centered(n("fine"), -50, 50),
			params.Range(n("keyfollow"), 0, 16).WithDefault(11),
			params.Range(n("bender"), 0, 1).WithDefault(1),
			params.Range(n("wave_bank"), 0, 3),
			params.Range(n("wave_number"), 0, 127),
			params.Range(n("pulse_width"), 0, 100),
			params.Centered(n("pw_velocity"), -7, 7),
			params.Range(n("sample_start"), 0, 16383),
			params.Range(n("tvf_cutoff"), 0, 100).WithDefault(100),
			params.Range(n("tvf_resonance"), 0, 30),
			params.Range(n("tvf_keyfollow"), 0, 14),
			params.Range(n("tvf_env_depth"), 0, 100),
		)
		entries = append(entries,
			patch.Value(n("coarse"), b),
			patch.Value(n("fine"), b+1, bias50),
			patch.Value(n("keyfollow"), b+2),
			patch.Bits(b+3, []int{6, 4}, []int{1, 2}, n("bender"), n("wave_bank")),
			patch.Value(n("wave_number"), b+4),
			patch.Value(n("pulse_width"), b+5),
			patch.Value(n("pw_velocity"), b+6, bias7),
			patch.WideValue(n("sample_start"), b+7, 2),
			patch.Value(n("tvf_cutoff"), b+9),
			patch.Value(n("tvf_resonance"), b+10),
			patch.Value(n("tvf_keyfollow"), b+11),
			patch.Value(n("tvf_env_depth"), b+12),
		)
		for i := 0; i < 4; i++ {
			name := n(fmt.Sprintf("tvf_time%d", i+1))
			defs = append(defs, params.Range(name, 0, 100))
			entries = append(entries, patch.Value(name, b+13+i))
		}
		defs = append(defs,
			params.Range(n("tva_level"), 0, 100).WithDefault(100),
			params.Centered(n("tva_velocity"), -50, 50),
		)
		entries = append(entries,
			patch.Value(n("tva_level"), b+17),
			patch.Value(n("tva_velocity"), b+18, bias50),
		)
		for i := 0; i < 4; i++ {
			name := n(fmt.Sprintf("tva_time%d", i+1))
			defs = append(defs, params.Range(name, 0, 100))
			entries = append(entries, patch.Value(name, b+19+i))
		}
		defs = append(defs, params.Centered(n("pan"), -7, 7))
		entries = append(entries, patch.Value(n("pan"), b+23, bias7))
	}

	defs = append(defs,
		params.Range("reverb_mode", 0, 3),
		params.Range("reverb_time", 0, 7),
		params.Range("reverb_level", 0, 7),
		params.Centered("tone_balance", -50, 50),
		params.Range("master_level", 0, 100).WithDefault(80),
	)
	entries = append(entries,
		patch.Bits(60, []int{5, 0}, []int{2, 3}, "reverb_mode", "reverb_time"),
		patch.Value("reverb_level", 61),
		patch.Value("tone_balance", 62, bias50),
		patch.Value("master_level", 63),
	)

	return params.MustSchema(defs...), &patch.Table{
		Size:    ToneSize,
		Entries: entries,
		Exclude: []string{"number"},
	}
}

var (
	toneSchema, toneTable = toneLayout()
	toneCodec             = patch.MustNew("roland/tone", toneSchema, toneTable)
)
