// Package diag defines the diagnostics provider collaborator (see
// SPEC_FULL.md §6.6) and supplies a concrete in-memory registry
// implementation. A diagnostics source is looked up by id, yields a type
// tag, and when invoked returns its current value.
package diag

import "encoding/binary"

// Kind identifies how a Source's raw value should be interpreted.
type Kind uint8

const (
	Int32 Kind = iota
	Uint32
)

// Source is a single id-addressed diagnostic reading. Get returns the
// current value's bit pattern (an int32 value is carried as its uint32
// reinterpretation) and whether a value was available.
type Source struct {
	Kind Kind
	Get  func() (uint32, bool)
}

// NewInt32Source builds a Source from a callback returning a signed value.
func NewInt32Source(get func() (int32, bool)) Source {
	return Source{
		Kind: Int32,
		Get: func() (uint32, bool) {
			v, ok := get()
			return uint32(v), ok
		},
	}
}

// NewUint32Source builds a Source from a callback returning an unsigned value.
func NewUint32Source(get func() (uint32, bool)) Source {
	return Source{Kind: Uint32, Get: get}
}

// EncodeValue reads the source's current value and serializes it to 4
// big-endian bytes, per spec.md §4.3's diagnostics wire contract. ok is
// false if the source had no value available.
func (s Source) EncodeValue() ([]byte, bool) {
	v, ok := s.Get()
	if !ok {
		return nil, false
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf, true
}

// Provider resolves a diagnostic source by id. cloudproto queries it while
// answering a DIAGNOSTICS request.
type Provider interface {
	Source(id uint32) (Source, bool)
}

// Registry is a concrete, in-memory Provider. The embedder registers its
// device-state-backed sources once at startup.
type Registry struct {
	sources map[uint32]Source
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[uint32]Source)}
}

// Register associates id with a diagnostic source, overwriting any prior
// registration for the same id.
func (r *Registry) Register(id uint32, s Source) {
	r.sources[id] = s
}

// Source implements Provider.
func (r *Registry) Source(id uint32) (Source, bool) {
	s, ok := r.sources[id]
	return s, ok
}
