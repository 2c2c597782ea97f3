package kawai

import (
	"fmt"

	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/signed"
)

// Legal is the character set the front panel can display.
const Legal = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -./'"

const (
	nameLen    = 8
	singleData = 130
	multiData  = 56
	sources    = 2
	harmonics  = 16
	segments   = 6
	sections   = 8
	sourceBase = 16
	sourceSize = 40
	maxSegByte = 96
)

var bias31 = signed.Bias{Offset: 31}

func src(s int, name string) string { return fmt.Sprintf("s%d_%s", s+1, name) }

// Max segment flags for both sources share bytes 96-97, interleaved
// source 1, source 2, source 1, ...
var (
	maxSegOffsets = []int{7, 6, 5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
	maxSegWidths  = []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	maxSegSkip    = [sources][]int{{1, 3, 5, 7, 9, 11}, {0, 2, 4, 6, 8, 10}}
)

func singleLayout() (*params.Schema, *patch.Table) {
	defs := []params.Def{
		params.Fixed("number", 0, 11),
		params.Range("volume", 0, 63).WithDefault(48),
		params.Centered("balance", -31, 31),
		params.Range("source_mode", 0, 1),
		params.Range("portamento_speed", 0, 63),
		params.Range("bend_range", 0, 12).WithDefault(2),
		params.Range("portamento", 0, 1),
		params.Range("pedal_assign", 0, 3),
	}
	entries := []patch.Entry{
		patch.TextField("name", 0, nameLen, Legal, true),
		patch.Value("volume", 8),
		patch.Value("balance", 9, bias31),
		patch.Bits(10, []int{6, 0}, []int{1, 6}, "source_mode", "portamento_speed"),
		patch.Value("bend_range", 11),
		patch.Bits(12, []int{7, 0}, []int{1, 2}, "portamento", "pedal_assign"),
	}

	for s := 0; s < sources; s++ {
		b := sourceBase + s*sourceSize
		defs = append(defs,
			params.Centered(src(s, "detune"), -31, 31),
			params.Centered(src(s, "keyscale"), -31, 31),
			params.Centered(src(s, "coarse"), -24, 24),
		)
		entries = append(entries,
			patch.Value(src(s, "detune"), b, bias31),
			patch.Value(src(s, "keyscale"), b+1, bias31),
			patch.Field(src(s, "coarse"), b+2, 0, 6, signed.Bias{Offset: 24}),
		)
		for h := 0; h < harmonics; h++ {
			name := src(s, fmt.Sprintf("harm%02d", h+1))
			defs = append(defs, params.Range(name, 0, 63))
			entries = append(entries, patch.Field(name, b+3+h, 0, 6))
		}
		defs = append(defs,
			params.Range(src(s, "harm_mod"), 0, 4),
			params.Range(src(s, "harm_mod_env"), 1, 4).WithDefault(1),
			params.Range(src(s, "harm_mod_depth"), 0, 31),
		)
		entries = append(entries,
			patch.Selector(src(s, "harm_mod"), src(s, "harm_mod_env"), b+19, []int{7, 5}, []int{1, 2}),
			patch.Field(src(s, "harm_mod_depth"), b+19, 0, 5),
		)
		for g := 0; g < segments; g++ {
			rate := src(s, fmt.Sprintf("dhg_rate%d", g+1))
			level := src(s, fmt.Sprintf("dhg_level%d", g+1))
			defs = append(defs, params.Range(rate, 0, 31), params.Range(level, 0, 31))
			// rates are stored upside down
			entries = append(entries,
				patch.Field(rate, b+20+g, 0, 5, signed.Invert{Max: 31}),
				patch.Field(level, b+26+g, 0, 5),
			)
		}
		defs = append(defs,
			params.Range(src(s, "dhg_velocity"), 0, 31),
			params.Centered(src(s, "dhg_keyscale"), -31, 31),
			params.Range(src(s, "ddf_cutoff"), 0, 99).WithDefault(99),
			params.Centered(src(s, "ddf_env_depth"), -31, 31),
			params.Range(src(s, "dhg_max_seg"), 0, segments),
		)
		entries = append(entries,
			patch.Field(src(s, "dhg_velocity"), b+32, 0, 5),
			patch.Value(src(s, "dhg_keyscale"), b+33, bias31),
			patch.Value(src(s, "ddf_cutoff"), b+34),
			patch.Value(src(s, "ddf_env_depth"), b+35, bias31),
			patch.OneHot(src(s, "dhg_max_seg"), maxSegByte, maxSegOffsets, maxSegWidths, maxSegSkip[s]),
		)
		for m := 0; m < 4; m++ {
			name := src(s, fmt.Sprintf("mod_env%d_depth", m+1))
			defs = append(defs, params.Range(name, 0, 31))
			entries = append(entries, patch.Field(name, b+36+m, 0, 5))
		}
	}

	defs = append(defs,
		params.Range("lfo_shape", 0, 5),
		params.Range("lfo_speed", 0, 99),
		params.Range("lfo_delay", 0, 31),
		params.Range("lfo_depth", 0, 31),
		params.Range("formant", 0, 1),
		params.Centered("formant_shift", -31, 31),
	)
	entries = append(entries,
		patch.Value("lfo_shape", 98),
		patch.Value("lfo_speed", 99),
		patch.Field("lfo_delay", 100, 0, 5),
		patch.Field("lfo_depth", 101, 0, 5),
		patch.Bits(102, []int{7, 0}, []int{1, 6}, "formant", "formant_shift").With(nil, bias31),
	)
	for f := 0; f < 11; f++ {
		name := fmt.Sprintf("formant_band%02d", f+1)
		defs = append(defs, params.Range(name, 0, 63))
		entries = append(entries, patch.Field(name, 103+f, 0, 6))
	}

	return params.MustSchema(defs...), &patch.Table{
		Size:    singleData,
		Entries: entries,
		Exclude: []string{"number"},
	}
}

func multiLayout() (*params.Schema, *patch.Table) {
	defs := []params.Def{params.Fixed("number", 0, 63)}
	var entries []patch.Entry
	for i := 0; i < sections; i++ {
		b := i * 6
		sec := func(name string) string { return fmt.Sprintf("sec%d_%s", i+1, name) }
		defs = append(defs,
			params.Range(sec("single"), 0, 11),
			params.Range(sec("zone_low"), 0, 127),
			params.Range(sec("zone_high"), 0, 127).WithDefault(127),
			params.Range(sec("mute"), 0, 1),
			params.Range(sec("vel_switch"), 0, 2),
			params.Range(sec("channel"), 0, 15),
			params.Range(sec("level"), 0, 99).WithDefault(80),
			params.Centered(sec("transpose"), -24, 24),
		)
		entries = append(entries,
			patch.Value(sec("single"), b),
			patch.Value(sec("zone_low"), b+1),
			patch.Value(sec("zone_high"), b+2),
			patch.Bits(b+3, []int{6, 4, 0}, []int{1, 2, 4}, sec("mute"), sec("vel_switch"), sec("channel")),
			patch.Value(sec("level"), b+4),
			patch.Value(sec("transpose"), b+5, signed.Bias{Offset: 24}),
		)
	}
	entries = append(entries, patch.TextField("name", 48, nameLen, Legal, true))
	return params.MustSchema(defs...), &patch.Table{
		Size:    multiData,
		Entries: entries,
		Exclude: []string{"number"},
	}
}

var (
	singleSchema, singleTable = singleLayout()
	multiSchema, multiTable   = multiLayout()

	singleCodec = patch.MustNew("kawai/single", singleSchema, singleTable)
	multiCodec  = patch.MustNew("kawai/multi", multiSchema, multiTable)
)
