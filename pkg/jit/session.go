package jit

import (
	"encoding/binary"
	"log"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/codecache"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
	"github.com/google/uuid"
)

// Options configures a Session.
type Options struct {
	// Cache, when set, is consulted before translating and filled after.
	Cache *codecache.Cache

	// Verbose logs each translation step.
	Verbose bool
}

// Stats describes a finished translation.
type Stats struct {
	SourceLen    int
	NativeLen    int
	Instructions int
	Relocations  int
	CacheHit     bool
}

// Session owns one bytecode program and its native image.
type Session struct {
	ID uuid.UUID

	code   []byte
	opts   Options
	layout *Layout
	mem    *ExecutableMemory
	stats  Stats
}

// NewSession creates a session for code. The bytecode is copied.
func NewSession(code []byte, opts Options) (*Session, error) {
	if len(code) == 0 {
		return nil, errors.Errorf(errors.NullInput, -1, "no bytecode to translate")
	}
	return &Session{
		ID:   uuid.New(),
		code: append([]byte(nil), code...),
		opts: opts,
	}, nil
}

func (s *Session) logf(format string, args ...any) {
	if s.opts.Verbose {
		log.Printf("[%s] "+format, append([]any{s.ID}, args...)...)
	}
}

// Translate runs the three passes and seals the result. It is a no-op once
// the session holds an image.
func (s *Session) Translate() error {
	if s.mem != nil {
		return nil
	}

	var key []byte
	if s.opts.Cache != nil {
		key = codecache.Key(Fingerprint(), s.code)
		entry, ok, err := s.opts.Cache.Get(key)
		switch {
		case err != nil:
			s.logf("cache lookup failed: %v", err)
		case ok && entry.SourceLen == len(s.code):
			if err := s.load(entry); err != nil {
				s.logf("cached image unusable, translating: %v", err)
			} else {
				return nil
			}
		}
	}

	layout, err := Size(s.code)
	if err != nil {
		return err
	}
	s.logf("sized %d source bytes: %d instructions, %d native bytes, %d relocations",
		layout.SourceLen, layout.Instructions, layout.NativeLen, len(layout.Relocations))

	mem, err := NewExecutableMemory(layout.NativeLen)
	if err != nil {
		return err
	}

	if _, err := Emit(s.code, layout, mem.Bytes()); err != nil {
		mem.Free()
		return err
	}
	patched, err := Patch(s.code, layout.Relocations, mem.Bytes())
	if err != nil {
		mem.Free()
		return err
	}
	if err := mem.Seal(); err != nil {
		mem.Free()
		return err
	}
	s.logf("emitted and patched %d relocations at %#x", patched, mem.BaseAddress())

	s.layout = layout
	s.mem = mem
	s.stats = Stats{
		SourceLen:    layout.SourceLen,
		NativeLen:    layout.NativeLen,
		Instructions: layout.Instructions,
		Relocations:  patched,
	}

	if s.opts.Cache != nil {
		if err := s.opts.Cache.Put(key, s.cacheEntry()); err != nil {
			s.logf("cache store failed: %v", err)
		}
	}
	return nil
}

func (s *Session) cacheEntry() *codecache.Entry {
	fixups := make([]codecache.Fixup, len(s.layout.HelperFixups))
	for i, f := range s.layout.HelperFixups {
		fixups[i] = codecache.Fixup{At: f.NativeAt, Helper: int(f.Helper)}
	}
	return &codecache.Entry{
		Fingerprint:  Fingerprint(),
		SourceLen:    s.stats.SourceLen,
		NativeLen:    s.stats.NativeLen,
		Instructions: s.stats.Instructions,
		Relocations:  s.stats.Relocations,
		Fixups:       fixups,
		Image:        s.Image(),
	}
}

// load maps a cached image and re-links its helper calls for this process.
func (s *Session) load(e *codecache.Entry) error {
	mem, err := NewExecutableMemory(e.NativeLen)
	if err != nil {
		return err
	}
	buf := mem.Bytes()
	copy(buf, e.Image)

	helpers := HostHelpers()
	for _, f := range e.Fixups {
		if f.At < 0 || f.At+8 > len(buf) {
			mem.Free()
			return errors.Errorf(errors.InvariantViolation, -1, "helper fixup at %#x outside %d-byte image", f.At, len(buf))
		}
		binary.LittleEndian.PutUint64(buf[f.At:], uint64(helpers.Addr(HelperID(f.Helper))))
	}

	if err := mem.Seal(); err != nil {
		mem.Free()
		return err
	}
	s.mem = mem
	s.stats = Stats{
		SourceLen:    e.SourceLen,
		NativeLen:    e.NativeLen,
		Instructions: e.Instructions,
		Relocations:  e.Relocations,
		CacheHit:     true,
	}
	s.logf("loaded %d native bytes from cache at %#x", e.NativeLen, mem.BaseAddress())
	return nil
}

// Run translates if needed and executes the image on the calling thread.
// A program that ends in ret returns here; one that reaches hlt exits the
// process.
func (s *Session) Run() error {
	if err := s.Translate(); err != nil {
		return err
	}
	s.logf("entering native code at %#x", s.mem.BaseAddress())
	if err := s.mem.Call(); err != nil {
		return err
	}
	s.logf("native code returned")
	return nil
}

// Layout returns the sizing pass result, computing it for images loaded
// from the cache.
func (s *Session) Layout() (*Layout, error) {
	if s.layout == nil {
		layout, err := Size(s.code)
		if err != nil {
			return nil, err
		}
		s.layout = layout
	}
	return s.layout, nil
}

// Image returns a copy of the translated native code, or nil before
// Translate.
func (s *Session) Image() []byte {
	if s.mem == nil {
		return nil
	}
	out := make([]byte, s.mem.Size())
	copy(out, s.mem.Bytes())
	return out
}

// Listing returns the native image disassembled per source instruction.
func (s *Session) Listing() (string, error) {
	if err := s.Translate(); err != nil {
		return "", err
	}
	return Disassemble(s.code, s.Image())
}

// Stats returns the figures of the last translation
func (s *Session) Stats() Stats {
	return s.stats
}

// Close releases the native image
func (s *Session) Close() error {
	if s.mem == nil {
		return nil
	}
	err := s.mem.Free()
	s.mem = nil
	return err
}
