package waldorf

import (
	"fmt"

	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/signed"
)

const (
	SoundSize = 383
	MultiSize = 416

	nameLen     = 16
	nameIdx     = 363
	categoryIdx = 379
)

// center stores signed values around 64.
var center = signed.Bias{Offset: 64}

// Index mappings into the 383-byte sound payload. -1 marks a field the
// oscillator does not have.
var oscFieldMapping = []struct {
	octave     int
	pitch      int
	detune     int
	bendRange  int
	keytrack   int
	fmSource   int
	fm         int
	shape      int
	pw         int
	pwmSource  int
	pwm        int
	limitWT    int
	brilliance int
}{
	{octave: 1, pitch: 2, detune: 3, bendRange: 4, keytrack: 5, fmSource: 6, fm: 7, shape: 8, pw: 9, pwmSource: 10, pwm: 11, limitWT: 14, brilliance: 16},
	{octave: 17, pitch: 18, detune: 19, bendRange: 20, keytrack: 21, fmSource: 22, fm: 23, shape: 24, pw: 25, pwmSource: 26, pwm: 27, limitWT: 30, brilliance: 32},
	{octave: 33, pitch: 34, detune: 35, bendRange: 36, keytrack: 37, fmSource: 38, fm: 39, shape: 40, pw: 41, pwmSource: 42, pwm: 43, limitWT: -1, brilliance: 48},
}

var filterFieldMapping = []struct {
	typ, cutoff, res, drive, driveCurve, keytrack, envAmt, envVel int
	modSource, modAmount, fmSource, fmAmount, pan, panSource       int
	panAmount                                                      int
}{
	{typ: 77, cutoff: 78, res: 80, drive: 81, driveCurve: 82, keytrack: 86, envAmt: 87, envVel: 88, modSource: 89, modAmount: 90, fmSource: 91, fmAmount: 92, pan: 93, panSource: 94, panAmount: 95},
	{typ: 97, cutoff: 98, res: 100, drive: 101, driveCurve: 102, keytrack: 106, envAmt: 107, envVel: 108, modSource: 109, modAmount: 110, fmSource: 111, fmAmount: 112, pan: 113, panSource: 114, panAmount: 115},
}

// Envelope 1 is the filter envelope, 2 the amp envelope.
var envelopeStart = []int{196, 208, 220, 232}

var lfoStart = []int{160, 172, 184}

var effectStart = []int{128, 144}

const (
	oscSyncIdx        = 49
	oscPitchSourceIdx = 50
	oscPitchAmountIdx = 51
	glideIdx          = 53
	glideModeIdx      = 56
	glideRateIdx      = 57
	unisonIdx         = 58
	unisonDetuneIdx   = 59

	filterRoutingIdx = 117

	ampVolumeIdx    = 121
	ampVelocityIdx  = 122
	ampModSourceIdx = 123
	ampModAmountIdx = 124

	modifierStartIdx  = 245
	modifierStride    = 4
	modMatrixStartIdx = 261
	modMatrixStride   = 3

	arpModeIdx               = 311
	arpPatternIdx            = 312
	arpClockIdx              = 314
	arpLengthIdx             = 315
	arpOctaveIdx             = 316
	arpDirectionIdx          = 317
	arpSortIdx               = 318
	arpVelocityIdx           = 319
	arpTimingFactorIdx       = 320
	arpPatternResetIdx       = 322
	arpPatternLengthIdx      = 323
	arpTempoIdx              = 326
	arpPatternStepsStartIdx  = 327
	arpPatternTimingStartIdx = 343
	arpSteps                 = 16
)

// mixer sources in payload order, level then balance.
var mixer = []struct {
	name  string
	level int
}{
	{"osc1", 61}, {"osc2", 63}, {"osc3", 65}, {"noise", 67}, {"ring", 71},
}

type builder struct {
	defs    []params.Def
	entries []patch.Entry
}

func (b *builder) value(name string, pos, min, max int) {
	b.defs = append(b.defs, params.Range(name, min, max))
	b.entries = append(b.entries, patch.Value(name, pos))
}

func (b *builder) centered(name string, pos, min, max int) {
	b.defs = append(b.defs, params.Centered(name, min, max))
	b.entries = append(b.entries, patch.Value(name, pos, center))
}

func (b *builder) add(d params.Def, e patch.Entry) {
	b.defs = append(b.defs, d)
	b.entries = append(b.entries, e)
}

func soundLayout() (*params.Schema, *patch.Table) {
	b := &builder{defs: []params.Def{
		params.Fixed("bank", 0, EditBuffer),
		params.Fixed("number", 0, 127),
	}}

	for i, m := range oscFieldMapping {
		n := func(name string) string { return fmt.Sprintf("osc%d_%s", i+1, name) }
		b.add(params.Range(n("octave"), 16, 112).WithDefault(64), patch.Value(n("octave"), m.octave))
		b.centered(n("pitch"), m.pitch, -12, 12)
		b.centered(n("detune"), m.detune, -64, 63)
		b.centered(n("bend_range"), m.bendRange, -24, 24)
		b.centered(n("keytrack"), m.keytrack, -64, 63)
		b.value(n("fm_source"), m.fmSource, 0, 11)
		b.value(n("fm"), m.fm, 0, 127)
		b.value(n("shape"), m.shape, 0, 72)
		b.value(n("pw"), m.pw, 0, 127)
		b.value(n("pwm_source"), m.pwmSource, 0, 30)
		b.centered(n("pwm"), m.pwm, -64, 63)
		if m.limitWT >= 0 {
			b.value(n("limit_wt"), m.limitWT, 0, 1)
		}
		b.value(n("brilliance"), m.brilliance, 0, 127)
	}

	b.value("osc2_sync", oscSyncIdx, 0, 1)
	b.value("pitch_source", oscPitchSourceIdx, 0, 30)
	b.centered("pitch_amount", oscPitchAmountIdx, -64, 63)
	b.value("glide", glideIdx, 0, 1)
	b.value("glide_mode", glideModeIdx, 0, 3)
	b.value("glide_rate", glideRateIdx, 0, 127)
	b.value("unison", unisonIdx, 0, 6)
	b.value("unison_detune", unisonDetuneIdx, 0, 127)

	for _, m := range mixer {
		b.value("mix_"+m.name, m.level, 0, 127)
		b.centered("mix_"+m.name+"_balance", m.level+1, -64, 63)
	}
	b.centered("mix_noise_color", 69, -64, 63)

	for i, m := range filterFieldMapping {
		n := func(name string) string { return fmt.Sprintf("filter%d_%s", i+1, name) }
		b.value(n("type"), m.typ, 0, 10)
		b.add(params.Range(n("cutoff"), 0, 127).WithDefault(127), patch.Value(n("cutoff"), m.cutoff))
		b.value(n("res"), m.res, 0, 127)
		b.value(n("drive"), m.drive, 0, 127)
		b.value(n("drive_curve"), m.driveCurve, 0, 12)
		b.centered(n("keytrack"), m.keytrack, -64, 63)
		b.centered(n("env_amt"), m.envAmt, -64, 63)
		b.centered(n("env_vel"), m.envVel, -64, 63)
		b.value(n("mod_source"), m.modSource, 0, 30)
		b.centered(n("mod_amount"), m.modAmount, -64, 63)
		b.value(n("fm_source"), m.fmSource, 0, 11)
		b.value(n("fm_amount"), m.fmAmount, 0, 127)
		b.centered(n("pan"), m.pan, -64, 63)
		b.value(n("pan_source"), m.panSource, 0, 30)
		b.centered(n("pan_amount"), m.panAmount, -64, 63)
	}
	b.value("filter_routing", filterRoutingIdx, 0, 1)

	b.add(params.Range("amp_volume", 0, 127).WithDefault(100), patch.Value("amp_volume", ampVolumeIdx))
	b.centered("amp_velocity", ampVelocityIdx, -64, 63)
	b.value("amp_mod_source", ampModSourceIdx, 0, 30)
	b.centered("amp_mod_amount", ampModAmountIdx, -64, 63)

	for i, base := range effectStart {
		n := func(name string) string { return fmt.Sprintf("fx%d_%s", i+1, name) }
		b.value(n("type"), base, 0, 8)
		b.value(n("mix"), base+1, 0, 127)
		for j := 0; j < 14; j++ {
			b.value(n(fmt.Sprintf("param%02d", j+1)), base+2+j, 0, 127)
		}
	}

	for i, base := range lfoStart {
		n := func(name string) string { return fmt.Sprintf("lfo%d_%s", i+1, name) }
		b.value(n("shape"), base, 0, 5)
		b.value(n("speed"), base+1, 0, 127)
		b.value(n("sync"), base+3, 0, 1)
		b.value(n("clocked"), base+4, 0, 1)
		b.value(n("start_phase"), base+5, 0, 127)
		b.value(n("delay"), base+6, 0, 127)
		b.centered(n("fade"), base+7, -64, 63)
		b.centered(n("keytrack"), base+10, -64, 63)
	}

	for i, base := range envelopeStart {
		n := func(name string) string { return fmt.Sprintf("env%d_%s", i+1, name) }
		b.defs = append(b.defs, params.Range(n("trigger"), 0, 1), params.Range(n("mode"), 0, 4))
		// trigger in bit 5, mode in bits 0-2
		b.entries = append(b.entries, patch.Bits(base, []int{5, 0}, []int{1, 3}, n("trigger"), n("mode")))
		for j, stage := range []string{"attack", "attack_level", "decay", "sustain", "decay2", "sustain2", "release"} {
			b.value(n(stage), base+3+j, 0, 127)
		}
	}

	for i := 0; i < 4; i++ {
		base := modifierStartIdx + i*modifierStride
		n := func(name string) string { return fmt.Sprintf("modifier%d_%s", i+1, name) }
		b.value(n("source_a"), base, 0, 30)
		b.value(n("source_b"), base+1, 0, 31)
		b.value(n("operator"), base+2, 0, 7)
		b.centered(n("constant"), base+3, -64, 63)
	}

	for i := 0; i < 16; i++ {
		base := modMatrixStartIdx + i*modMatrixStride
		n := func(name string) string { return fmt.Sprintf("mod%02d_%s", i+1, name) }
		b.value(n("source"), base, 0, 30)
		b.value(n("dest"), base+1, 0, 53)
		b.centered(n("amount"), base+2, -64, 63)
	}

	b.value("arp_mode", arpModeIdx, 0, 3)
	b.value("arp_pattern", arpPatternIdx, 0, 16)
	b.value("arp_clock", arpClockIdx, 0, 42)
	b.value("arp_length", arpLengthIdx, 0, 43)
	b.value("arp_octave", arpOctaveIdx, 0, 9)
	b.value("arp_direction", arpDirectionIdx, 0, 3)
	b.value("arp_sort", arpSortIdx, 0, 5)
	b.value("arp_velocity", arpVelocityIdx, 0, 6)
	b.value("arp_timing_factor", arpTimingFactorIdx, 0, 127)
	b.value("arp_pattern_reset", arpPatternResetIdx, 0, 1)
	b.value("arp_pattern_length", arpPatternLengthIdx, 0, 15)
	b.add(params.Range("arp_tempo", 0, 127).WithDefault(55), patch.Value("arp_tempo", arpTempoIdx))
	for i := 0; i < arpSteps; i++ {
		n := func(name string) string { return fmt.Sprintf("arp%02d_%s", i+1, name) }
		b.defs = append(b.defs,
			params.Range(n("step"), 0, 7), params.Range(n("glide"), 0, 1), params.Range(n("accent"), 0, 7).WithDefault(4),
			params.Range(n("length"), 0, 7).WithDefault(4), params.Range(n("timing"), 0, 7).WithDefault(4),
		)
		b.entries = append(b.entries,
			patch.Bits(arpPatternStepsStartIdx+i, []int{4, 3, 0}, []int{3, 1, 3}, n("step"), n("glide"), n("accent")),
			patch.Bits(arpPatternTimingStartIdx+i, []int{4, 0}, []int{3, 3}, n("length"), n("timing")),
		)
	}

	b.entries = append(b.entries, patch.TextField("name", nameIdx, nameLen, "", false))
	b.value("category", categoryIdx, 0, 12)

	return params.MustSchema(b.defs...), &patch.Table{
		Size:    SoundSize,
		Entries: b.entries,
		Exclude: []string{"bank", "number"},
	}
}

const (
	multiParts    = 16
	multiPartBase = 32
	multiPartSize = 24
)

func multiLayout() (*params.Schema, *patch.Table) {
	b := &builder{defs: []params.Def{
		params.Fixed("bank", 0, EditBuffer),
		params.Fixed("number", 0, 127),
	}}
	b.entries = append(b.entries, patch.TextField("name", 0, nameLen, "", false))
	b.add(params.Range("volume", 0, 127).WithDefault(127), patch.Value("volume", 17))
	b.add(params.Range("tempo", 0, 127).WithDefault(55), patch.Value("tempo", 18))

	for i := 0; i < multiParts; i++ {
		base := multiPartBase + i*multiPartSize
		n := func(name string) string { return fmt.Sprintf("part%02d_%s", i+1, name) }
		b.value(n("bank"), base, 0, 7)
		b.value(n("program"), base+1, 0, 127)
		b.add(params.Range(n("volume"), 0, 127).WithDefault(100), patch.Value(n("volume"), base+2))
		b.centered(n("pan"), base+3, -64, 63)
		b.centered(n("transpose"), base+5, -48, 48)
		b.centered(n("detune"), base+6, -64, 63)
		b.add(params.Range(n("channel"), 0, 17).WithDefault(i+2), patch.Value(n("channel"), base+7))
		b.value(n("low_key"), base+8, 0, 127)
		b.add(params.Range(n("high_key"), 0, 127).WithDefault(127), patch.Value(n("high_key"), base+9))
		b.add(params.Range(n("low_vel"), 1, 127), patch.Value(n("low_vel"), base+10))
		b.add(params.Range(n("high_vel"), 1, 127).WithDefault(127), patch.Value(n("high_vel"), base+11))
		b.defs = append(b.defs,
			params.Range(n("mute"), 0, 1),
			params.Range(n("rx_midi"), 0, 1).WithDefault(1),
			params.Range(n("rx_usb"), 0, 1).WithDefault(1),
			params.Range(n("rx_local"), 0, 1).WithDefault(1),
		)
		b.entries = append(b.entries,
			patch.Bits(base+12, []int{6, 2, 1, 0}, []int{1, 1, 1, 1}, n("mute"), n("rx_midi"), n("rx_usb"), n("rx_local")))
	}

	return params.MustSchema(b.defs...), &patch.Table{
		Size:    MultiSize,
		Entries: b.entries,
		Exclude: []string{"bank", "number"},
	}
}

var (
	soundSchema, soundTable = soundLayout()
	multiSchema, multiTable = multiLayout()

	soundCodec = patch.MustNew("waldorf/sound", soundSchema, soundTable)
	multiCodec = patch.MustNew("waldorf/multi", multiSchema, multiTable)
)
