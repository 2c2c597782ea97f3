package clavia

import (
	"fmt"

	"patchmcp/internal/bitfield"
	"patchmcp/internal/params"
	"patchmcp/internal/patch"
)

const (
	nameLen = 16
	bodyLen = 72
	// BodySize is the decoded name and body payload. Every byte of it is
	// already a 7-bit wire byte.
	BodySize = nameLen + bodyLen

	Steps = 16
	// SeqSize is the 8-bit sequencer payload before 7-bit repacking.
	SeqSize = 24
)

var stepWidths = []int{5, 1, 4, 2}

var stepNames = []string{"note", "gate", "velocity", "ratchet"}

func stepName(step int, field string) string {
	return fmt.Sprintf("step%02d_%s", step+1, field)
}

// signedParams are the -64..63 values carried as split MSB/LSB pairs, by
// body offset.
var signedParams = []struct {
	name string
	pos  int
}{
	{"osc2_semi", 2},
	{"osc2_fine", 4},
	{"filter_env_amt", 13},
	{"filter_velocity", 15},
	{"lfo1_amount", 29},
	{"lfo2_amount", 34},
	{"mod_env_amount", 39},
	{"transpose", 44},
}

func programDefs() []params.Def {
	defs := []params.Def{
		params.Range("osc1_wave", 0, 3),
		params.Range("osc2_wave", 0, 3),
		params.Range("osc_mix", 0, 127).WithDefault(64),
		params.Range("fm_amount", 0, 127),
		params.Range("osc2_sync", 0, 1),
		params.Range("osc2_keytrack", 0, 1).WithDefault(1),
		params.Range("pulse_width", 0, 127).WithDefault(64),
		params.Range("filter_type", 0, 4),
		params.Range("filter_cutoff", 0, 127).WithDefault(127),
		params.Range("filter_resonance", 0, 127),
		params.Range("filter_keytrack", 0, 4),
	}
	for _, env := range []string{"filter_env", "amp_env"} {
		for _, stage := range []string{"attack", "decay", "sustain", "release"} {
			defs = append(defs, params.Range(env+"_"+stage, 0, 127))
		}
	}
	defs = append(defs, params.Range("amp_gain", 0, 127).WithDefault(100))
	for _, lfo := range []string{"lfo1", "lfo2"} {
		defs = append(defs,
			params.Range(lfo+"_wave", 0, 4),
			params.Range(lfo+"_rate", 0, 127),
			params.Range(lfo+"_dest", 0, 7),
		)
	}
	defs = append(defs,
		params.Range("mod_env_attack", 0, 127),
		params.Range("mod_env_decay", 0, 127),
		params.Range("mod_env_dest", 0, 3),
		params.Range("unison", 0, 1),
		params.Range("voice_mode", 0, 2),
		params.Range("glide", 0, 127),
		params.Range("octave_shift", 0, 4).WithDefault(2),
		params.Range("seq_tempo", 0, 127).WithDefault(100),
		params.Range("seq_length", 1, Steps).WithDefault(Steps),
		params.Range("seq_dest", 0, 3),
	)
	for _, p := range signedParams {
		defs = append(defs, params.Centered(p.name, -64, 63))
	}
	for i := 0; i < Steps; i++ {
		defs = append(defs,
			params.Range(stepName(i, "note"), 0, 24).WithDefault(12),
			params.Range(stepName(i, "gate"), 0, 1).WithDefault(1),
			params.Range(stepName(i, "velocity"), 0, 15).WithDefault(12),
			params.Range(stepName(i, "ratchet"), 0, 3),
		)
	}
	return append(defs,
		params.Fixed("bank", 0, Banks-1),
		params.Fixed("number", 0, Locations-1),
	)
}

func bodyEntries() []patch.Entry {
	b := nameLen
	entries := []patch.Entry{
		patch.TextField("name", 0, nameLen, "", false),
		patch.Value("osc1_wave", b+0),
		patch.Value("osc2_wave", b+1),
		patch.Value("osc_mix", b+6),
		patch.Value("fm_amount", b+7),
		patch.Bits(b+8, []int{1, 0}, []int{1, 1}, "osc2_sync", "osc2_keytrack"),
		patch.Value("pulse_width", b+9),
		patch.Value("filter_type", b+10),
		patch.Value("filter_cutoff", b+11),
		patch.Value("filter_resonance", b+12),
		patch.Value("filter_keytrack", b+17),
	}
	pos := b + 18
	for _, env := range []string{"filter_env", "amp_env"} {
		for _, stage := range []string{"attack", "decay", "sustain", "release"} {
			entries = append(entries, patch.Value(env+"_"+stage, pos))
			pos++
		}
	}
	entries = append(entries,
		patch.Value("amp_gain", b+26),
		patch.Value("lfo1_wave", b+27),
		patch.Value("lfo1_rate", b+28),
		patch.Value("lfo1_dest", b+31),
		patch.Value("lfo2_wave", b+32),
		patch.Value("lfo2_rate", b+33),
		patch.Value("lfo2_dest", b+36),
		patch.Value("mod_env_attack", b+37),
		patch.Value("mod_env_decay", b+38),
		patch.Value("mod_env_dest", b+41),
		patch.Bits(b+42, []int{2, 0}, []int{1, 2}, "unison", "voice_mode"),
		patch.Value("glide", b+43),
		patch.Value("octave_shift", b+46),
		patch.Value("seq_tempo", b+47),
		patch.Value("seq_length", b+48),
		patch.Value("seq_dest", b+49),
	)
	for _, p := range signedParams {
		entries = append(entries, patch.SplitByte(p.name, b+p.pos, 0))
	}
	return entries
}

func seqEntry() patch.Entry {
	var widths []int
	var names []string
	for i := 0; i < Steps; i++ {
		for j, f := range stepNames {
			widths = append(widths, stepWidths[j])
			names = append(names, stepName(i, f))
		}
	}
	if n := bitfield.StreamBytes(widths); n != SeqSize {
		panic(fmt.Sprintf("clavia: sequencer stream is %d bytes, want %d", n, SeqSize))
	}
	return patch.StreamFields(0, widths, names...)
}

var (
	programSchema = params.MustSchema(programDefs()...)

	bodyTable = &patch.Table{Size: BodySize, Entries: bodyEntries(), Exclude: []string{"bank", "number"}}
	seqTable  = &patch.Table{Size: SeqSize, Entries: []patch.Entry{seqEntry()}}

	bodyCodec = patch.MustNew("clavia/program", programSchema, bodyTable)
	seqCodec  = patch.MustNew("clavia/sequencer", programSchema, seqTable)
)
