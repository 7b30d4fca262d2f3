// Package metrics collects business metrics for the papercite service.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds counters for the question answering pipeline.
type Metrics struct {
	// Ask metrics.
	asksTotal      uint64
	asksCacheHits  uint64
	asksCacheMisses uint64
	asksRefused    uint64
	asksErrors     uint64

	// Retrieval metrics.
	retrievalTotal    uint64
	retrievalDuration float64
	retrievalErrors   uint64

	// Completion metrics.
	completionsTotal    uint64
	completionsDuration float64
	completionsErrors   uint64
	tokensPrompt        uint64
	tokensCompletion    uint64

	// Verification metrics.
	quotesVerified   uint64
	quotesUnverified uint64
	quotesRemoved    uint64

	// Ingest metrics.
	documentsIngested uint64
	chunksIngested    uint64
	documentsRemoved  uint64
	ingestErrors      uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			startTime: time.Now(),
		}
	})
	return globalMetrics
}

// RecordAsk records one answered question.
func (m *Metrics) RecordAsk(cacheHit, refused bool, err error) {
	atomic.AddUint64(&m.asksTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.asksErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.asksCacheHits, 1)
	} else {
		atomic.AddUint64(&m.asksCacheMisses, 1)
	}
	if refused {
		atomic.AddUint64(&m.asksRefused, 1)
	}
}

// RecordRetrieval records one vector store search.
func (m *Metrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordCompletion records one chat model call.
func (m *Metrics) RecordCompletion(duration time.Duration, promptTokens, completionTokens int, err error) {
	atomic.AddUint64(&m.completionsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.completionsErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.completionsDuration += duration.Seconds()
	m.durationMu.Unlock()

	if promptTokens > 0 {
		atomic.AddUint64(&m.tokensPrompt, uint64(promptTokens))
	}
	if completionTokens > 0 {
		atomic.AddUint64(&m.tokensCompletion, uint64(completionTokens))
	}
}

// RecordVerification records the outcome of one answer verification.
func (m *Metrics) RecordVerification(verified, unverified, removed int) {
	if verified > 0 {
		atomic.AddUint64(&m.quotesVerified, uint64(verified))
	}
	if unverified > 0 {
		atomic.AddUint64(&m.quotesUnverified, uint64(unverified))
	}
	if removed > 0 {
		atomic.AddUint64(&m.quotesRemoved, uint64(removed))
	}
}

// RecordIngest records one document ingestion.
func (m *Metrics) RecordIngest(documents, chunks int, err error) {
	if err != nil {
		atomic.AddUint64(&m.ingestErrors, 1)
		return
	}
	atomic.AddUint64(&m.documentsIngested, uint64(documents))
	atomic.AddUint64(&m.chunksIngested, uint64(chunks))
}

// RecordRemove records one document removal.
func (m *Metrics) RecordRemove() {
	atomic.AddUint64(&m.documentsRemoved, 1)
}

// Export renders the metrics in Prometheus text exposition format.
func (m *Metrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	writeCounter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n", prefix, name, value))
		sb.WriteString("\n")
	}
	writeGauge := func(name, help string, value float64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s gauge\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %.4f\n", prefix, name, value))
		sb.WriteString("\n")
	}

	writeCounter("asks_total", "Total number of questions asked.", atomic.LoadUint64(&m.asksTotal))
	writeCounter("asks_cache_hits_total", "Number of answer cache hits.", atomic.LoadUint64(&m.asksCacheHits))
	writeCounter("asks_cache_misses_total", "Number of answer cache misses.", atomic.LoadUint64(&m.asksCacheMisses))
	writeCounter("asks_refused_total", "Number of refused answers.", atomic.LoadUint64(&m.asksRefused))
	writeCounter("asks_errors_total", "Number of ask errors.", atomic.LoadUint64(&m.asksErrors))

	cacheHits := atomic.LoadUint64(&m.asksCacheHits)
	cacheMisses := atomic.LoadUint64(&m.asksCacheMisses)
	total := cacheHits + cacheMisses
	cacheHitRate := 0.0
	if total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}
	writeGauge("cache_hit_rate", "Answer cache hit rate (0-1).", cacheHitRate)

	writeCounter("retrieval_total", "Total number of retrievals.", atomic.LoadUint64(&m.retrievalTotal))
	writeCounter("retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	completionsDuration := m.completionsDuration
	m.durationMu.Unlock()

	sb.WriteString(fmt.Sprintf("# HELP %s_retrieval_duration_seconds_total Total retrieval duration.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_retrieval_duration_seconds_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_retrieval_duration_seconds_total %.6f\n", prefix, retrievalDuration))
	sb.WriteString("\n")

	writeCounter("completions_total", "Total number of chat model calls.", atomic.LoadUint64(&m.completionsTotal))
	writeCounter("completions_errors_total", "Number of chat model errors.", atomic.LoadUint64(&m.completionsErrors))

	sb.WriteString(fmt.Sprintf("# HELP %s_completions_duration_seconds_total Total chat model call duration.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_completions_duration_seconds_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_completions_duration_seconds_total %.6f\n", prefix, completionsDuration))
	sb.WriteString("\n")

	writeCounter("tokens_prompt_total", "Total prompt tokens.", atomic.LoadUint64(&m.tokensPrompt))
	writeCounter("tokens_completion_total", "Total completion tokens.", atomic.LoadUint64(&m.tokensCompletion))

	writeCounter("quotes_verified_total", "Number of quotes verified against sources.", atomic.LoadUint64(&m.quotesVerified))
	writeCounter("quotes_unverified_total", "Number of quotes that failed verification.", atomic.LoadUint64(&m.quotesUnverified))
	writeCounter("quotes_removed_total", "Number of unverified quotes removed from answers.", atomic.LoadUint64(&m.quotesRemoved))

	writeCounter("documents_ingested_total", "Number of documents ingested.", atomic.LoadUint64(&m.documentsIngested))
	writeCounter("chunks_ingested_total", "Number of chunks ingested.", atomic.LoadUint64(&m.chunksIngested))
	writeCounter("documents_removed_total", "Number of documents removed.", atomic.LoadUint64(&m.documentsRemoved))
	writeCounter("ingest_errors_total", "Number of ingest errors.", atomic.LoadUint64(&m.ingestErrors))

	writeGauge("uptime_seconds", "Service uptime in seconds.", time.Since(m.startTime).Seconds())

	return sb.String()
}

// Reset clears all counters. Intended for tests.
func (m *Metrics) Reset() {
	atomic.StoreUint64(&m.asksTotal, 0)
	atomic.StoreUint64(&m.asksCacheHits, 0)
	atomic.StoreUint64(&m.asksCacheMisses, 0)
	atomic.StoreUint64(&m.asksRefused, 0)
	atomic.StoreUint64(&m.asksErrors, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.completionsTotal, 0)
	atomic.StoreUint64(&m.completionsErrors, 0)
	atomic.StoreUint64(&m.tokensPrompt, 0)
	atomic.StoreUint64(&m.tokensCompletion, 0)
	atomic.StoreUint64(&m.quotesVerified, 0)
	atomic.StoreUint64(&m.quotesUnverified, 0)
	atomic.StoreUint64(&m.quotesRemoved, 0)
	atomic.StoreUint64(&m.documentsIngested, 0)
	atomic.StoreUint64(&m.chunksIngested, 0)
	atomic.StoreUint64(&m.documentsRemoved, 0)
	atomic.StoreUint64(&m.ingestErrors, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.completionsDuration = 0
	m.durationMu.Unlock()
}
