package history

import (
	"sync"
	"testing"

	"github.com/benaskins/joule/internal/energy"
)

func sampleAt(ts float64) energy.Sample {
	return energy.Sample{TS: ts, BucketJ: ts * 10}
}

func timestamps(samples []energy.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.TS
	}
	return out
}

func TestRingBasicAdd(t *testing.T) {
	r := New(5)
	for i := 1; i <= 3; i++ {
		r.Add(sampleAt(float64(i)))
	}

	got := timestamps(r.Samples())
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	if got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("unexpected samples: %v", got)
	}
}

func TestRingOverflow(t *testing.T) {
	r := New(3)
	for i := 1; i <= 5; i++ {
		r.Add(sampleAt(float64(i)))
	}

	got := timestamps(r.Samples())
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	if got[0] != 3 || got[1] != 4 || got[2] != 5 {
		t.Errorf("expected [3 4 5], got %v", got)
	}
}

func TestRingExactlyFull(t *testing.T) {
	r := New(3)
	for i := 1; i <= 3; i++ {
		r.Add(sampleAt(float64(i)))
	}

	got := timestamps(r.Samples())
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestRingLast(t *testing.T) {
	r := New(10)
	for i := 1; i <= 5; i++ {
		r.Add(sampleAt(float64(i)))
	}

	got := timestamps(r.Last(2))
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("expected [4 5], got %v", got)
	}

	if all := r.Last(100); len(all) != 5 {
		t.Errorf("expected all 5 samples, got %d", len(all))
	}
	if none := r.Last(0); len(none) != 0 {
		t.Errorf("expected no samples, got %v", none)
	}
}

func TestRingLastAfterWrap(t *testing.T) {
	r := New(4)
	for i := 1; i <= 10; i++ {
		r.Add(sampleAt(float64(i)))
	}

	got := timestamps(r.Last(3))
	if len(got) != 3 || got[0] != 8 || got[1] != 9 || got[2] != 10 {
		t.Errorf("expected [8 9 10], got %v", got)
	}
}

func TestRingLastCopies(t *testing.T) {
	r := New(2)
	r.Add(sampleAt(1))

	got := r.Last(1)
	got[0].TS = 99
	if r.Last(1)[0].TS != 1 {
		t.Error("Last exposed the ring's backing array")
	}
}

func TestRingEmpty(t *testing.T) {
	r := New(5)
	if got := r.Samples(); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestRingMinimumSize(t *testing.T) {
	r := New(0)
	r.Add(sampleAt(1))
	r.Add(sampleAt(2))

	got := timestamps(r.Samples())
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("expected [2], got %v", got)
	}
}

func TestRingConcurrentAccess(t *testing.T) {
	r := New(100)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Add(sampleAt(float64(i*100 + j)))
			}
		}(i)
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Samples()
			}
		}()
	}

	wg.Wait()

	if got := r.Samples(); len(got) != 100 {
		t.Errorf("expected 100 samples, got %d", len(got))
	}
}
