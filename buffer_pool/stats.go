package buffer_pool

import "sync/atomic"

// statistics
type stats struct {
	hitCount   uint64
	missCount  uint64
	readCount  uint64
	writeCount uint64
}

// increment hit count
func (st *stats) IncrHitCount() uint64 {
	atomic.AddUint64(&st.readCount, 1)
	return atomic.AddUint64(&st.hitCount, 1)
}

// increment miss count
func (st *stats) IncrMissCount() uint64 {
	atomic.AddUint64(&st.readCount, 1)
	return atomic.AddUint64(&st.missCount, 1)
}

// IncrWriteCount increments disk write count
func (st *stats) IncrWriteCount() uint64 {
	return atomic.AddUint64(&st.writeCount, 1)
}

// HitCount returns hit count
func (st *stats) HitCount() uint64 {
	return atomic.LoadUint64(&st.hitCount)
}

// MissCount returns miss count
func (st *stats) MissCount() uint64 {
	return atomic.LoadUint64(&st.missCount)
}

// WriteCount returns disk write count
func (st *stats) WriteCount() uint64 {
	return atomic.LoadUint64(&st.writeCount)
}

// HitRate returns rate for cache hitting
func (st *stats) HitRate() float64 {
	hc, mc := st.HitCount(), st.MissCount()
	total := hc + mc
	if total == 0 {
		return 0.0
	}
	return float64(hc) / float64(total)
}
