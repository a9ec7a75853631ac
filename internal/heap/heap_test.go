package heap

import (
	"testing"

	"github.com/xirelogy/go-lisp/internal/value"
)

type rootSet struct {
	vals []value.Value
}

func (r *rootSet) MarkRoots(mark func(value.Value)) {
	for _, v := range r.vals {
		mark(v)
	}
}

func newTestHeap(t *testing.T) (*Heap, *rootSet) {
	t.Helper()
	h := New(Config{InitialThreshold: 1 << 30})
	roots := &rootSet{}
	h.AddRoot(roots)
	return h, roots
}

func TestCollectFreesUnreachable(t *testing.T) {
	h, roots := newTestHeap(t)
	kept := h.NewPair(value.Number(1), value.Nil())
	h.NewPair(value.Number(2), value.Nil())
	h.NewString("garbage")
	roots.vals = append(roots.vals, kept)

	st := h.Collect()
	if st.LastFreed != 2 {
		t.Fatalf("expected 2 freed, got %d", st.LastFreed)
	}
	if st.Live != 1 {
		t.Fatalf("expected 1 live, got %d", st.Live)
	}
	p, ok := h.AsPair(kept)
	if !ok || p.Car.Num != 1 {
		t.Fatalf("expected rooted pair to survive")
	}
}

func TestStaleReferencePanics(t *testing.T) {
	h, _ := newTestHeap(t)
	garbage := h.NewString("x")
	h.Collect()
	if h.Valid(garbage.Ref) {
		t.Fatalf("expected handle to be invalid after collection")
	}
	reused := h.NewString("y")
	if reused.Ref.Index != garbage.Ref.Index {
		t.Fatalf("expected slot reuse, got %s and %s", garbage.Ref, reused.Ref)
	}
	if reused.Ref.Gen == garbage.Ref.Gen {
		t.Fatalf("expected generation bump on reuse")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on stale reference")
		}
	}()
	h.Get(garbage.Ref)
}

func TestDeepListSurvives(t *testing.T) {
	h, roots := newTestHeap(t)
	list := value.Nil()
	roots.vals = []value.Value{list}
	for i := 0; i < 100000; i++ {
		list = h.NewPair(value.Number(float64(i)), list)
		roots.vals[0] = list
	}
	st := h.Collect()
	if st.Live != 100000 {
		t.Fatalf("expected 100000 live pairs, got %d", st.Live)
	}
}

func TestClosureTracesUpvalues(t *testing.T) {
	h, roots := newTestHeap(t)
	fnRef, fn := h.NewFunction("f", "", 1)
	fn.UpvalueCount = 1
	fn.Chunk.AddConstant(h.NewString("const"))
	clRef, cl := h.NewClosure(fnRef)
	cell := h.NewUpvalue(0)
	cl.Upvalues[0] = cell
	uv := h.Upvalue(cell)
	uv.Closed = true
	uv.Value = h.NewPair(value.Number(1), value.Number(2))
	roots.vals = []value.Value{value.Object(clRef)}

	st := h.Collect()
	if st.Live != 5 {
		t.Fatalf("expected 5 live objects, got %d", st.Live)
	}
	if got := h.Format(uv.Value); got != "(1 . 2)" {
		t.Fatalf("expected (1 . 2), got %s", got)
	}
}

func TestStressAllocKeepsPendingChildren(t *testing.T) {
	h, roots := newTestHeap(t)
	h.SetStress(true)
	s := h.NewString("car")
	p := h.NewPair(s, value.Nil())
	roots.vals = []value.Value{p}
	h.NewString("other")
	pair, _ := h.AsPair(p)
	str, ok := h.AsString(pair.Car)
	if !ok || str.Value != "car" {
		t.Fatalf("expected car string to survive stress collection")
	}
	if h.Stats().Collections < 3 {
		t.Fatalf("expected a collection per allocation, got %d", h.Stats().Collections)
	}
}

func TestThresholdAdapts(t *testing.T) {
	h := New(Config{InitialThreshold: 100, MinThreshold: 64, GrowthFactor: 2})
	roots := &rootSet{}
	h.AddRoot(roots)
	for i := 0; i < 10; i++ {
		h.NewPair(value.Number(1), value.Nil())
	}
	st := h.Stats()
	if st.Collections == 0 {
		t.Fatalf("expected threshold to trigger a collection")
	}
	if st.Threshold != 64 {
		t.Fatalf("expected threshold clamped to 64, got %d", st.Threshold)
	}
}

func TestThresholdWithoutFloor(t *testing.T) {
	h := New(Config{InitialThreshold: 1 << 30, MinThreshold: -1, GrowthFactor: 1.5})
	roots := &rootSet{}
	h.AddRoot(roots)
	for i := 0; i < 10; i++ {
		roots.vals = append(roots.vals, h.NewPair(value.Number(float64(i)), value.Nil()))
	}
	st := h.Collect()
	if st.LiveBytes == 0 {
		t.Fatalf("expected rooted pairs to survive")
	}
	if want := int(float64(st.LiveBytes) * 1.5); st.Threshold != want {
		t.Fatalf("expected threshold %d, got %d", want, st.Threshold)
	}

	roots.vals = nil
	if st := h.Collect(); st.Threshold != 0 {
		t.Fatalf("expected threshold 0 for an empty heap, got %d", st.Threshold)
	}
}

func TestListAndFormat(t *testing.T) {
	h, _ := newTestHeap(t)
	l := h.List([]value.Value{value.Number(1), value.Number(2.5), h.NewString("s"), value.Bool(true)})
	if got := h.Format(l); got != `(1 2.5 "s" true)` {
		t.Fatalf("unexpected format %s", got)
	}
	cases := map[float64]string{
		3:      "3",
		-0.5:   "-0.5",
		1e20:   "1e+20",
		2.5e-7: "2.5e-07",
	}
	for n, want := range cases {
		if got := FormatNumber(n); got != want {
			t.Fatalf("FormatNumber(%v): expected %s, got %s", n, want, got)
		}
	}
}
