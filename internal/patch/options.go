package patch

import (
	"fmt"

	"patchmcp/internal/checksum"
	"patchmcp/internal/sysex"
)

// Options are shared by every vendor format.
type Options struct {
	// Strict makes formats reject received checksums that do not match.
	// Received checksums are not enforced by default.
	Strict bool
	// Device is the SysEx device ID (or MIDI channel, for formats that
	// address one) written into emitted messages.
	Device byte
}

// Verify checks a received checksum against data[start:end]. Outside strict
// mode a mismatch is accepted.
func (o Options) Verify(format string, a checksum.Algorithm, data []byte, start, end int, got []byte) error {
	if !o.Strict || checksum.Verify(a, data, start, end, got) {
		return nil
	}
	return fmt.Errorf("%s: %w: want % X, got % X", format, sysex.ErrChecksumMismatch, a.Compute(data, start, end), got)
}
