package metrics

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *Metrics {
	m := GetMetrics()
	m.Reset()
	return m
}

func TestGetMetrics(t *testing.T) {
	m1 := GetMetrics()
	m2 := GetMetrics()

	assert.Same(t, m1, m2, "GetMetrics should return the same singleton")
}

func TestRecordAsk(t *testing.T) {
	m := newTestMetrics()

	m.RecordAsk(true, false, nil)
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.asksTotal))
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.asksCacheHits))
	assert.Equal(t, uint64(0), atomic.LoadUint64(&m.asksCacheMisses))

	m.RecordAsk(false, false, nil)
	assert.Equal(t, uint64(2), atomic.LoadUint64(&m.asksTotal))
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.asksCacheMisses))

	m.RecordAsk(false, true, nil)
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.asksRefused))

	m.RecordAsk(false, false, assert.AnError)
	assert.Equal(t, uint64(4), atomic.LoadUint64(&m.asksTotal))
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.asksErrors))
	// Errors do not count toward cache hit/miss.
	assert.Equal(t, uint64(2), atomic.LoadUint64(&m.asksCacheMisses))
}

func TestRecordRetrieval(t *testing.T) {
	m := newTestMetrics()

	m.RecordRetrieval(100*time.Millisecond, nil)
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.retrievalTotal))
	assert.InDelta(t, 0.1, m.retrievalDuration, 0.01)

	m.RecordRetrieval(50*time.Millisecond, assert.AnError)
	assert.Equal(t, uint64(2), atomic.LoadUint64(&m.retrievalTotal))
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.retrievalErrors))
}

func TestRecordCompletion(t *testing.T) {
	m := newTestMetrics()

	m.RecordCompletion(500*time.Millisecond, 100, 50, nil)
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.completionsTotal))
	assert.InDelta(t, 0.5, m.completionsDuration, 0.01)
	assert.Equal(t, uint64(100), atomic.LoadUint64(&m.tokensPrompt))
	assert.Equal(t, uint64(50), atomic.LoadUint64(&m.tokensCompletion))

	m.RecordCompletion(time.Second, 0, 0, assert.AnError)
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.completionsErrors))
	assert.Equal(t, uint64(100), atomic.LoadUint64(&m.tokensPrompt))
}

func TestRecordVerification(t *testing.T) {
	m := newTestMetrics()

	m.RecordVerification(3, 1, 1)
	m.RecordVerification(2, 0, 0)

	assert.Equal(t, uint64(5), atomic.LoadUint64(&m.quotesVerified))
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.quotesUnverified))
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.quotesRemoved))
}

func TestRecordIngest(t *testing.T) {
	m := newTestMetrics()

	m.RecordIngest(1, 12, nil)
	m.RecordIngest(1, 8, nil)
	m.RecordIngest(0, 0, assert.AnError)

	assert.Equal(t, uint64(2), atomic.LoadUint64(&m.documentsIngested))
	assert.Equal(t, uint64(20), atomic.LoadUint64(&m.chunksIngested))
	assert.Equal(t, uint64(1), atomic.LoadUint64(&m.ingestErrors))
}

func TestExport(t *testing.T) {
	m := newTestMetrics()

	m.RecordAsk(true, false, nil)
	m.RecordAsk(false, false, nil)
	m.RecordIngest(1, 4, nil)

	out := m.Export("papercite", "service")

	assert.Contains(t, out, "papercite_service_asks_total 2")
	assert.Contains(t, out, "papercite_service_asks_cache_hits_total 1")
	assert.Contains(t, out, "papercite_service_cache_hit_rate 0.5000")
	assert.Contains(t, out, "papercite_service_chunks_ingested_total 4")
	assert.Contains(t, out, "# TYPE papercite_service_asks_total counter")
	assert.True(t, strings.Contains(out, "uptime_seconds"))
}

func TestConcurrentRecording(t *testing.T) {
	m := newTestMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordAsk(j%2 == 0, false, nil)
				m.RecordRetrieval(time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), atomic.LoadUint64(&m.asksTotal))
	assert.Equal(t, uint64(1000), atomic.LoadUint64(&m.retrievalTotal))
}
