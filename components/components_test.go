package components

import (
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestRef(t *testing.T) {
	if None.Valid() {
		t.Error("None.Valid() = true, want false")
	}
	var zero Ref
	if zero != None {
		t.Error("zero Ref is not None")
	}

	r := RefTo(7)
	idx, ok := r.Get()
	if !ok || idx != 7 {
		t.Errorf("RefTo(7).Get() = (%d, %v), want (7, true)", idx, ok)
	}
	if RefTo(0) == None {
		t.Error("RefTo(0) must differ from None")
	}
}

func TestRefIndexPanicsWhenAbsent(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Index on None did not panic")
		}
	}()
	None.Index()
}

func TestBeeStateString(t *testing.T) {
	tests := []struct {
		state BeeState
		want  string
	}{
		{Idle, "IDLE"},
		{Scout, "SCOUT"},
		{Returning, "RETURNING"},
		{Dancing, "DANCING"},
		{Follower, "FOLLOWER"},
		{Foraging, "FORAGING"},
		{BeeState(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("BeeState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestFlowerAtomics(t *testing.T) {
	f := NewFlower(3, r2.Vec{X: 1, Y: 2}, 5, 2)
	if f.Nectar() != 5 {
		t.Errorf("Nectar() = %v, want 5", f.Nectar())
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				f.AddFeeding(1)
				f.AddFeeding(-1)
			}
		}()
	}
	wg.Wait()
	if f.Feeding() != 0 {
		t.Errorf("Feeding() = %d after balanced updates, want 0", f.Feeding())
	}
}
