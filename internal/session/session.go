// Package session is one editing session against one instrument: the
// current patch, coalesced single-parameter sends and full writes that
// honor the instrument's delay contract.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"patchmcp/internal/formats"
	"patchmcp/internal/midiio"
	"patchmcp/internal/params"
	"patchmcp/internal/sysex"
)

var ErrNoTransport = errors.New("session has no MIDI transport")

type Session struct {
	ID     string
	Format formats.Format

	mu sync.Mutex
	// flushMu is held for a whole Flush, so a Flush that returns has seen
	// every send started before it.
	flushMu  sync.Mutex
	inflight sync.WaitGroup
	store    *params.Store
	unsub    func()
	pending  map[string]struct{}
	sender   midiio.Sender
	debounce func(func())
	// lastErr is the most recent failure of a background send.
	lastErr error
}

// New opens a session on f seeded with defaults. sender may be nil for
// offline editing; interval 0 sends parameter changes immediately.
func New(f formats.Format, sender midiio.Sender, interval time.Duration) *Session {
	s := &Session{
		ID:      uuid.New().String(),
		Format:  f,
		sender:  sender,
		pending: make(map[string]struct{}),
	}
	if interval > 0 {
		s.debounce = debounce.New(interval)
	}
	s.attach(params.NewStore(f.Schema()))
	return s
}

// attach must be called with mu held or before the session is shared.
func (s *Session) attach(store *params.Store) {
	if s.unsub != nil {
		s.unsub()
	}
	s.store = store
	s.unsub = store.OnChange(func(c params.Change) {
		s.pending[c.Name] = struct{}{}
	})
}

func (s *Session) schedule() {
	if s.sender == nil {
		return
	}
	if _, ok := s.Format.(formats.ParamChanger); !ok {
		return
	}
	if s.debounce == nil {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.Flush()
		}()
		return
	}
	s.debounce(s.Flush)
}

// Set validates and stores one parameter, then queues its send.
func (s *Session) Set(name string, v int) error {
	s.mu.Lock()
	err := s.store.SetByName(name, v)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.schedule()
	return nil
}

// Randomize rerolls every parameter starting with prefix and queues the
// changed ones.
func (s *Session) Randomize(r *rand.Rand, prefix string) []string {
	s.mu.Lock()
	touched := s.store.Randomize(r, prefix)
	s.mu.Unlock()
	s.schedule()
	return touched
}

// SetText changes a text field such as the patch name.
func (s *Session) SetText(key, v string) {
	s.mu.Lock()
	if s.store.Text(key) != v {
		s.store.SetText(key, v)
		s.pending[key] = struct{}{}
	}
	s.mu.Unlock()
	s.schedule()
}

func (s *Session) Get(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.store.Schema().Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", params.ErrUnknownKey, name)
	}
	return s.store.Get(id), nil
}

// Snapshot returns a copy of the current patch.
func (s *Session) Snapshot() *params.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Clone()
}

// Load replaces the current patch. Values are copied by name so stores over
// another schema are accepted; the unknown names are returned.
func (s *Session) Load(src *params.Store) []string {
	next := params.NewStore(s.Format.Schema())
	unknown := next.Load(src.Values())
	if v := src.Text("name"); v != "" {
		next.SetText("name", v)
	}
	s.mu.Lock()
	s.attach(next)
	s.pending = make(map[string]struct{})
	s.mu.Unlock()
	return unknown
}

// Pending lists names changed since the last flush, sorted.
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Session) pendingLocked() []string {
	names := make([]string, 0, len(s.pending))
	for n := range s.pending {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Flush sends one parameter change per pending name and returns once
// every change queued before the call is out, including ones a
// background flush had already taken. Names the format cannot address on
// their own are dropped with a log line; a full Write covers them.
func (s *Session) Flush() {
	pc, ok := s.Format.(formats.ParamChanger)
	if !ok || s.sender == nil {
		return
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	names := s.pendingLocked()
	s.pending = make(map[string]struct{})
	snap := s.store.Clone()
	s.mu.Unlock()

	for _, name := range names {
		msg, err := pc.ParamChange(snap, name)
		if errors.Is(err, sysex.ErrUnknownParameterKey) {
			log.Printf("[session] %s: %s has no single-parameter address, skipping", s.ID, name)
			continue
		}
		if err == nil {
			err = s.sender.SendSysEx(msg)
		}
		if err != nil {
			log.Printf("[session] %s: sending %s: %v", s.ID, name, err)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
		}
	}
}

// Err returns and clears the last background send failure.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lastErr
	s.lastErr = nil
	return err
}

// Fetch requests a dump of bank/number from the instrument and loads it.
func (s *Session) Fetch(ctx context.Context, bank, number int) error {
	if s.sender == nil {
		return ErrNoTransport
	}
	req, err := s.Format.RequestDump(bank, number)
	if err != nil {
		return err
	}
	reply, err := s.sender.Request(ctx, req, func(msg []byte) bool {
		return formats.MatchesPatch(s.Format, msg)
	})
	if err != nil {
		return fmt.Errorf("requesting %s bank %d number %d: %w", s.Format.ID(), bank, number, err)
	}
	patch, err := s.Format.Parse(reply)
	if err != nil {
		return err
	}
	s.Load(patch)
	log.Printf("[session] %s: loaded %s %q", s.ID, s.Format.ID(), patch.Text("name"))
	return nil
}

// Write sends the whole patch, confirms it when the instrument replies to
// writes, then waits out the format's write delay.
func (s *Session) Write(ctx context.Context) error {
	if s.sender == nil {
		return ErrNoTransport
	}
	s.mu.Lock()
	snap := s.store.Clone()
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	msg, err := s.Format.Emit(snap)
	if err != nil {
		return err
	}

	if wc, ok := s.Format.(formats.WriteConfirmer); ok {
		shape := wc.ReplyShape()
		reply, err := s.sender.Request(ctx, msg, shape.Matches)
		if err != nil {
			return fmt.Errorf("waiting for write result: %w", err)
		}
		if err := wc.ConfirmWrite(reply); err != nil {
			return err
		}
	} else if err := s.sender.SendSysEx(msg); err != nil {
		return err
	}

	d := formats.WriteDelay(s.Format)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retarget moves the patch to the slot Fetch(bank, number) reads, without
// queueing sends. A negative bank or number keeps the current one.
func (s *Session) Retarget(bank, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := formats.Retarget(s.Format, s.store, bank, number)
	delete(s.pending, "bank")
	delete(s.pending, "number")
	return err
}

// Close waits for background sends and detaches the store.
func (s *Session) Close() {
	s.inflight.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}
