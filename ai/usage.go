package ai

import (
	"sync"
	"time"
)

// Usage accumulates per-provider request statistics
type Usage struct {
	TotalRequests  int64         `json:"total_requests"`
	TotalTokens    int64         `json:"total_tokens"`
	TotalCost      float64       `json:"total_cost"`
	ErrorCount     int64         `json:"error_count"`
	LastUsed       time.Time     `json:"last_used"`
	AverageLatency time.Duration `json:"average_latency"`
}

// usageRecorder guards a Usage value for concurrent adapters
type usageRecorder struct {
	mu    sync.Mutex
	usage Usage
}

// recordSuccess folds one successful request into the stats. Latency uses a
// rolling halving blend: each new sample averages against the running value.
func (r *usageRecorder) recordSuccess(duration time.Duration, tokens int, cost float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usage.TotalRequests++
	r.usage.TotalTokens += int64(tokens)
	r.usage.TotalCost += cost
	r.usage.LastUsed = time.Now()
	r.usage.AverageLatency = (r.usage.AverageLatency + duration) / 2
}

// recordError counts a failed request. Request and token totals only track
// successes.
func (r *usageRecorder) recordError() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usage.ErrorCount++
}

// snapshot returns a copy safe to hand out
func (r *usageRecorder) snapshot() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.usage
}

// estimateTokens approximates token count as len/4 when the upstream response
// carries no usage block. Rough, but consistent across providers.
func estimateTokens(text string) int {
	return len(text) / 4
}
