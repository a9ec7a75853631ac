package heap

import (
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-lisp/internal/value"
)

const (
	DefaultInitialThreshold = 1 << 20
	DefaultMinThreshold     = 256 << 10
	DefaultGrowthFactor     = 2.0
)

// Config tunes collection scheduling. After a collection the next threshold
// is the live size times GrowthFactor, raised to MinThreshold. A negative
// MinThreshold disables the floor.
type Config struct {
	InitialThreshold int
	MinThreshold     int
	GrowthFactor     float64
	// Stress collects before every allocation.
	Stress bool
}

// RootSource contributes values that must survive a collection.
type RootSource interface {
	MarkRoots(mark func(value.Value))
}

// Stats summarises allocator and collector activity.
type Stats struct {
	Collections  int
	Allocations  int
	Freed        int
	LastFreed    int
	Live         int
	LiveBytes    int
	Bytes        int
	Threshold    int
	LastDuration time.Duration
}

type slot struct {
	gen    uint32
	marked bool
	obj    Object
}

// Heap is a generational arena of objects with a mark-sweep collector.
// It is not safe for concurrent use.
type Heap struct {
	cfg       Config
	slots     []slot
	free      []uint32
	count     int
	bytes     int
	threshold int

	roots    []RootSource
	temps    []value.Value
	worklist []value.Ref

	stats Stats
	log   commonlog.Logger
}

// New creates an empty heap.
func New(cfg Config) *Heap {
	if cfg.InitialThreshold <= 0 {
		cfg.InitialThreshold = DefaultInitialThreshold
	}
	switch {
	case cfg.MinThreshold == 0:
		cfg.MinThreshold = DefaultMinThreshold
	case cfg.MinThreshold < 0:
		cfg.MinThreshold = 0
	}
	if cfg.GrowthFactor <= 1 {
		cfg.GrowthFactor = DefaultGrowthFactor
	}
	return &Heap{
		cfg:       cfg,
		threshold: cfg.InitialThreshold,
		log:       commonlog.GetLogger("lisp.gc"),
	}
}

// SetStress toggles collection before every allocation.
func (h *Heap) SetStress(on bool) {
	h.cfg.Stress = on
}

// AddRoot registers a root source for subsequent collections.
func (h *Heap) AddRoot(rs RootSource) {
	h.roots = append(h.roots, rs)
}

// RemoveRoot unregisters rs. Removing an unknown source is a no-op.
func (h *Heap) RemoveRoot(rs RootSource) {
	for i, r := range h.roots {
		if r == rs {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// PushTemp keeps v alive until the matching PopTemps.
func (h *Heap) PushTemp(v value.Value) {
	h.temps = append(h.temps, v)
}

func (h *Heap) PopTemps(n int) {
	if n > len(h.temps) {
		n = len(h.temps)
	}
	h.temps = h.temps[:len(h.temps)-n]
}

// Alloc places obj in the arena and returns its handle. Any object obj
// references is kept alive across the collection this call may trigger.
func (h *Heap) Alloc(obj Object) value.Ref {
	sz := obj.size()
	if h.cfg.Stress || h.bytes+sz > h.threshold {
		h.collect(obj)
	}
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.slots = append(h.slots, slot{gen: 0})
		idx = uint32(len(h.slots) - 1)
	}
	s := &h.slots[idx]
	s.gen++
	s.obj = obj
	s.marked = false
	h.count++
	h.bytes += sz
	h.stats.Allocations++
	return value.Ref{Index: idx, Gen: s.gen}
}

// Get resolves ref. A stale or out-of-range handle is a bug and panics.
func (h *Heap) Get(ref value.Ref) Object {
	if int(ref.Index) >= len(h.slots) {
		panic(fmt.Sprintf("heap: reference %s out of range", ref))
	}
	s := &h.slots[ref.Index]
	if s.obj == nil || s.gen != ref.Gen {
		panic(fmt.Sprintf("heap: stale reference %s", ref))
	}
	return s.obj
}

// Valid reports whether ref names a live object.
func (h *Heap) Valid(ref value.Ref) bool {
	if int(ref.Index) >= len(h.slots) {
		return false
	}
	s := &h.slots[ref.Index]
	return s.obj != nil && s.gen == ref.Gen
}

// Len returns the number of live objects.
func (h *Heap) Len() int {
	return h.count
}

// Collect runs a full collection and returns the updated statistics.
func (h *Heap) Collect() Stats {
	h.collect(nil)
	return h.Stats()
}

func (h *Heap) Stats() Stats {
	st := h.stats
	st.Live = h.count
	st.Bytes = h.bytes
	st.Threshold = h.threshold
	return st
}

func (h *Heap) collect(pending Object) {
	start := time.Now()
	for _, rs := range h.roots {
		rs.MarkRoots(h.markValue)
	}
	for _, v := range h.temps {
		h.markValue(v)
	}
	if pending != nil {
		h.traceObject(pending)
	}
	h.drain()
	freed, liveBytes := h.sweep()

	h.bytes = liveBytes
	next := int(float64(liveBytes) * h.cfg.GrowthFactor)
	if next < h.cfg.MinThreshold {
		next = h.cfg.MinThreshold
	}
	h.threshold = next

	h.stats.Collections++
	h.stats.Freed += freed
	h.stats.LastFreed = freed
	h.stats.LiveBytes = liveBytes
	h.stats.LastDuration = time.Since(start)
	h.log.Debug("collection",
		"freed", freed,
		"live", h.count,
		"bytes", liveBytes,
		"threshold", h.threshold,
		"duration", h.stats.LastDuration)
}

func (h *Heap) markValue(v value.Value) {
	if v.Kind == value.KindObject {
		h.markRef(v.Ref)
	}
}

func (h *Heap) markRef(ref value.Ref) {
	h.Get(ref)
	s := &h.slots[ref.Index]
	if s.marked {
		return
	}
	s.marked = true
	h.worklist = append(h.worklist, ref)
}

func (h *Heap) drain() {
	for len(h.worklist) > 0 {
		n := len(h.worklist) - 1
		ref := h.worklist[n]
		h.worklist = h.worklist[:n]
		h.traceObject(h.slots[ref.Index].obj)
	}
}

func (h *Heap) traceObject(obj Object) {
	switch o := obj.(type) {
	case *Pair:
		h.markValue(o.Car)
		h.markValue(o.Cdr)
	case *Function:
		if o.Chunk != nil {
			for _, c := range o.Chunk.Constants {
				h.markValue(c)
			}
		}
	case *Closure:
		h.markRef(o.Function)
		for _, uv := range o.Upvalues {
			// unset while the VM is still capturing
			if uv.Gen != 0 {
				h.markRef(uv)
			}
		}
	case *Upvalue:
		if o.Closed {
			h.markValue(o.Value)
		}
	case *Builtin, *String:
	}
}

func (h *Heap) sweep() (freed, liveBytes int) {
	for i := range h.slots {
		s := &h.slots[i]
		if s.obj == nil {
			continue
		}
		if !s.marked {
			s.obj = nil
			h.free = append(h.free, uint32(i))
			h.count--
			freed++
			continue
		}
		s.marked = false
		liveBytes += s.obj.size()
	}
	return freed, liveBytes
}
