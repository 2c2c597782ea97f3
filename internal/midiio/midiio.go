// Package midiio is the MIDI transport: port lookup, SysEx send and
// request/reply with a timeout.
package midiio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// DefaultTimeout bounds Request when the context has no deadline.
const DefaultTimeout = 5 * time.Second

var ErrTimeout = errors.New("timed out waiting for reply")

// Sender is what the session needs from a transport.
type Sender interface {
	SendSysEx(data []byte) error
	Request(ctx context.Context, req []byte, match func([]byte) bool) ([]byte, error)
}

// NoteSender plays channel messages.
type NoteSender interface {
	Send(msg midi.Message) error
}

// DumpBytes writes data one byte per line, for debugging wire traffic.
func DumpBytes(w io.Writer, data []byte, label string) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "Dumping %d bytes to %s:\n", len(data), label)
	for i, b := range data {
		fmt.Fprintf(w, "%d 0x%02X\n", i, b)
	}
}

// Port is an opened output plus the input replies arrive on.
type Port struct {
	out drivers.Out
	in  drivers.In
	// Dump receives a hex dump of every message sent and received when set.
	Dump    io.Writer
	Timeout time.Duration
}

// Open opens the output port at outIdx. inIdx may be -1 for send only use.
func Open(outIdx, inIdx int) (*Port, func(), error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, nil, err
	}
	if outIdx < 0 || outIdx >= len(outs) {
		return nil, nil, fmt.Errorf("output port index %d out of range", outIdx)
	}
	out := outs[outIdx]
	if err := out.Open(); err != nil {
		return nil, nil, err
	}

	p := &Port{out: out, Timeout: DefaultTimeout}
	if inIdx >= 0 {
		ins, err := drivers.Ins()
		if err != nil {
			_ = out.Close()
			return nil, nil, err
		}
		if inIdx >= len(ins) {
			_ = out.Close()
			return nil, nil, fmt.Errorf("input port index %d out of range", inIdx)
		}
		p.in = ins[inIdx]
	}

	closer := func() {
		_ = out.Close()
		drivers.Close()
	}
	log.Println("Opened MIDI output port", out.String())
	return p, closer, nil
}

// OpenByName resolves both ports from one name fragment.
func OpenByName(fragment string) (*Port, func(), error) {
	outIdx, err := FindOutPort(fragment)
	if err != nil {
		return nil, nil, err
	}
	inIdx, err := FindInPort(fragment)
	if err != nil {
		log.Printf("no input port for %q, replies disabled: %v", fragment, err)
		inIdx = -1
	}
	return Open(outIdx, inIdx)
}

// Send transmits a MIDI message to the output port.
func (p *Port) Send(msg midi.Message) error {
	if !p.out.IsOpen() {
		if err := p.out.Open(); err != nil {
			return err
		}
	}
	return p.out.Send(msg.Bytes())
}

// SendSysEx transmits a raw SysEx message, or several concatenated ones.
func (p *Port) SendSysEx(data []byte) error {
	DumpBytes(p.Dump, data, "sent_sysex.txt")
	return p.Send(midi.Message(data))
}

// Request sends req and waits for the first SysEx message accepted by
// match. A nil match accepts any SysEx.
func (p *Port) Request(ctx context.Context, req []byte, match func([]byte) bool) ([]byte, error) {
	if p.in == nil {
		return nil, errors.New("no MIDI input port open")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	msgCh := make(chan []byte, 1)
	stop, err := midi.ListenTo(p.in, func(msg midi.Message, _ int32) {
		if len(msg) == 0 || msg[0] != 0xF0 {
			return
		}
		if match != nil && !match(msg) {
			return
		}
		select {
		case msgCh <- append([]byte(nil), msg...):
		default:
		}
	}, midi.UseSysEx(), midi.SysExBufferSize(8192))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for reply: %w", err)
	}
	defer stop()

	if err := p.SendSysEx(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case msg := <-msgCh:
		DumpBytes(p.Dump, msg, "received_sysex.txt")
		return msg, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func FindOutPort(nameFragment string) (int, error) {
	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return -1, fmt.Errorf("no MIDI outputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out.Number(), nil
		}
	}

	return -1, fmt.Errorf("no MIDI output contains %q", nameFragment)
}

func FindInPort(nameFragment string) (int, error) {
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		return -1, fmt.Errorf("no MIDI inputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), lower) {
			return in.Number(), nil
		}
	}

	return -1, fmt.Errorf("no MIDI input contains %q", nameFragment)
}

// Ports lists output and input port names.
func Ports() (outs, ins string) {
	return midi.GetOutPorts().String(), midi.GetInPorts().String()
}
