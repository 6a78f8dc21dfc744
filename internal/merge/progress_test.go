package merge

import (
	"sync"
	"testing"
)

func TestProgressMonotone(t *testing.T) {
	var p progress

	p.raiseTo(10)
	if got := p.value(); got != 10 {
		t.Fatalf("value = %v, want 10", got)
	}

	// Lower targets never decrease the reading.
	p.raiseTo(5)
	if got := p.value(); got != 10 {
		t.Fatalf("value after lower raise = %v, want 10", got)
	}

	p.raiseTo(42.37)
	if got := p.value(); got != 42.37 {
		t.Fatalf("value = %v, want 42.37", got)
	}
}

func TestProgressClamped(t *testing.T) {
	var p progress
	p.raiseTo(-3)
	if got := p.value(); got != 0 {
		t.Fatalf("negative raise moved value: %v", got)
	}
	p.raiseTo(250)
	if got := p.value(); got != 100 {
		t.Fatalf("value = %v, want clamp at 100", got)
	}
}

func TestProgressConcurrentRaises(t *testing.T) {
	var p progress
	var wg sync.WaitGroup

	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(pct float64) {
			defer wg.Done()
			p.raiseTo(pct)
		}(float64(i))
	}
	wg.Wait()

	if got := p.value(); got != 100 {
		t.Fatalf("value = %v, want 100", got)
	}
}
