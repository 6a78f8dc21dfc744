package merge

import "sync/atomic"

// progress is the single merge-wide mutated datum: a monotonically
// non-decreasing percentage in basis points, safe to read from any
// goroutine at any time.
type progress struct {
	bp atomic.Int64 // 0..10000
}

// raiseTo lifts the value to pct (percent) if it is higher than the
// current reading. Lower targets are ignored, which keeps readings
// monotone even when stages race.
func (p *progress) raiseTo(pct float64) {
	if pct < 0 {
		return
	}
	if pct > 100 {
		pct = 100
	}
	target := int64(pct * 100)
	for {
		cur := p.bp.Load()
		if cur >= target {
			return
		}
		if p.bp.CompareAndSwap(cur, target) {
			return
		}
	}
}

// value returns the current percentage in [0, 100].
func (p *progress) value() float64 {
	return float64(p.bp.Load()) / 100
}
