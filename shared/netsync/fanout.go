package netsync

import (
	"fmt"

	"github.com/automoto/framesync/shared/bitstream"
	"github.com/automoto/framesync/shared/framering"
	"github.com/automoto/framesync/shared/netconfig"
)

const (
	// PriorityBuckets is the number of ordering buckets; lower runs first.
	PriorityBuckets = 10
	// DefaultPriority is used by FanoutBuilder.Add.
	DefaultPriority = PriorityBuckets / 2
)

// Capabilities a sync component may implement. A Fanout dispatches each
// operation to the components that implement it, in registration order.
type (
	Capturer interface {
		Capture(frame netconfig.FrameID)
	}
	Quantizer interface {
		Quantize()
	}
	Serializer interface {
		// Serialize writes the component's share of a payload and reports
		// whether it wrote field content. force writes the fields even when
		// the frame did not change.
		Serialize(frame netconfig.FrameID, w *bitstream.Writer, force bool) bool
	}
	Deserializer interface {
		// Deserialize decodes into scratch storage; Commit publishes it.
		Deserialize(r *bitstream.Reader)
		Commit(local netconfig.FrameID)
	}
	Interpolator interface {
		Interpolate(p framering.Pointers, t float64)
	}
	AuthorityChanger interface {
		AuthorityChanged(writer bool)
	}
	FullStateWriter interface {
		WriteFullState(w *bitstream.Writer)
	}
	FullStateReader interface {
		// ReadFullState decodes into scratch storage; StageFullState moves
		// it into the offtick slot.
		ReadFullState(r *bitstream.Reader)
		StageFullState()
	}
	// Enabler reports whether the component currently takes part in sync.
	Enabler interface {
		Enabled() bool
	}
)

// FanoutBuilder collects components with their priorities.
type FanoutBuilder struct {
	buckets [PriorityBuckets][]any
	err     error
}

func NewFanoutBuilder() *FanoutBuilder {
	return &FanoutBuilder{}
}

// Add registers a component at DefaultPriority.
func (b *FanoutBuilder) Add(c any) *FanoutBuilder {
	return b.AddWithPriority(DefaultPriority, c)
}

// AddWithPriority registers a component in bucket priority.
func (b *FanoutBuilder) AddWithPriority(priority int, c any) *FanoutBuilder {
	if b.err != nil {
		return b
	}
	if priority < 0 || priority >= PriorityBuckets {
		b.err = fmt.Errorf("%w: %d", ErrInvalidPriority, priority)
		return b
	}
	b.buckets[priority] = append(b.buckets[priority], c)
	return b
}

// Build freezes the order: ascending bucket, insertion order within a bucket.
// Writer and reader must build identical fanouts.
func (b *FanoutBuilder) Build() (*Fanout, error) {
	if b.err != nil {
		return nil, b.err
	}
	f := &Fanout{}
	for _, bucket := range b.buckets {
		for _, c := range bucket {
			f.add(c)
		}
	}
	return f, nil
}

// Fanout dispatches entity-level operations across its components in a fixed
// order. The payload is a flat bit stream without delimiters, so that order is
// part of the wire contract.
type Fanout struct {
	components    []any
	capturers     []Capturer
	quantizers    []Quantizer
	serializers   []Serializer
	deserializers []Deserializer
	snapshotters  []Snapshotter
	interpolators []Interpolator
	authority     []AuthorityChanger
	fullWriters   []FullStateWriter
	fullReaders   []FullStateReader
}

func (f *Fanout) add(c any) {
	f.components = append(f.components, c)
	if v, ok := c.(Capturer); ok {
		f.capturers = append(f.capturers, v)
	}
	if v, ok := c.(Quantizer); ok {
		f.quantizers = append(f.quantizers, v)
	}
	if v, ok := c.(Serializer); ok {
		f.serializers = append(f.serializers, v)
	}
	if v, ok := c.(Deserializer); ok {
		f.deserializers = append(f.deserializers, v)
	}
	if v, ok := c.(Snapshotter); ok {
		f.snapshotters = append(f.snapshotters, v)
	}
	if v, ok := c.(Interpolator); ok {
		f.interpolators = append(f.interpolators, v)
	}
	if v, ok := c.(AuthorityChanger); ok {
		f.authority = append(f.authority, v)
	}
	if v, ok := c.(FullStateWriter); ok {
		f.fullWriters = append(f.fullWriters, v)
	}
	if v, ok := c.(FullStateReader); ok {
		f.fullReaders = append(f.fullReaders, v)
	}
}

// Components returns the registered components in dispatch order.
func (f *Fanout) Components() []any { return f.components }

func (f *Fanout) Len() int { return len(f.components) }

// Snapshotters are attached to the entity's Playback.
func (f *Fanout) Snapshotters() []Snapshotter { return f.snapshotters }

func enabled(c any) bool {
	e, ok := c.(Enabler)
	return !ok || e.Enabled()
}

func (f *Fanout) Capture(frame netconfig.FrameID) {
	for _, c := range f.capturers {
		if enabled(c) {
			c.Capture(frame)
		}
	}
}

func (f *Fanout) Quantize() {
	for _, c := range f.quantizers {
		if enabled(c) {
			c.Quantize()
		}
	}
}

// Serialize appends every serializer's share of frame to w. It reports whether
// any component wrote field content and how many bits were appended.
//
// Disabled components still serialize: skipping them would shift every later
// field on the reader.
func (f *Fanout) Serialize(frame netconfig.FrameID, w *bitstream.Writer, force bool) (bool, int) {
	start := w.Len()
	hasContent := false
	for _, s := range f.serializers {
		if s.Serialize(frame, w, force) {
			hasContent = true
		}
	}
	return hasContent, w.Len() - start
}

// Deserialize decodes one payload into every component's scratch frame. The
// payload is rejected if any component reads past its end or if a whole byte
// or more is left over.
func (f *Fanout) Deserialize(r *bitstream.Reader) error {
	for _, d := range f.deserializers {
		d.Deserialize(r)
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFramingDesync, err)
	}
	if rest := r.Remaining(); rest >= 8 {
		return fmt.Errorf("%w: %d trailing bits", ErrFramingDesync, rest)
	}
	return nil
}

// Commit publishes the last decoded payload into slot local.
func (f *Fanout) Commit(local netconfig.FrameID) {
	for _, d := range f.deserializers {
		d.Commit(local)
	}
}

// Interpolate renders every component a fraction t of the way from snap to
// targ.
func (f *Fanout) Interpolate(p framering.Pointers, t float64) {
	for _, c := range f.interpolators {
		if enabled(c) {
			c.Interpolate(p, t)
		}
	}
}

func (f *Fanout) ChangeAuthority(writer bool) {
	for _, c := range f.authority {
		c.AuthorityChanged(writer)
	}
}

func (f *Fanout) WriteFullState(w *bitstream.Writer) {
	for _, c := range f.fullWriters {
		c.WriteFullState(w)
	}
}

// ReadFullState decodes a full-state payload and, only if it decoded cleanly,
// stages it in every component's offtick slot.
func (f *Fanout) ReadFullState(r *bitstream.Reader) error {
	for _, c := range f.fullReaders {
		c.ReadFullState(r)
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: full state: %v", ErrFramingDesync, err)
	}
	for _, c := range f.fullReaders {
		c.StageFullState()
	}
	return nil
}
