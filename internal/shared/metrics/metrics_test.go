package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistogramCountsIntoFirstCoveringBucket(t *testing.T) {
	h := &histogram{name: "h", help: "test", bounds: []float64{10, 100}, counts: make([]uint64, 2)}
	h.observe(5)
	h.observe(10)
	h.observe(50)
	h.observe(500)

	assert.Equal(t, []uint64{2, 1}, h.counts)

	var b strings.Builder
	h.write(&b)
	out := b.String()
	assert.Contains(t, out, `h_bucket{le="10"} 2`)
	assert.Contains(t, out, `h_bucket{le="100"} 3`)
	assert.Contains(t, out, `h_bucket{le="+Inf"} 4`)
	assert.Contains(t, out, "h_sum 565\n")
}

func TestRenderIncludesLabelledCounters(t *testing.T) {
	IncStageCompleted("stake_extraction")
	IncRateLimited("theme_synthesis")
	IncFailure("")
	IncThrottled("start")

	out := Render()
	for _, want := range []string{
		`generation_stages_completed_total{stage="stake_extraction"}`,
		`generation_rate_limited_total{stage="theme_synthesis"}`,
		`generation_failures_total{code="unknown"}`,
		`http_requests_throttled_total{class="start"}`,
		"# TYPE generation_stage_duration_ms histogram",
	} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "generation_passes_started_total"), strings.Index(out, "http_panics_recovered_total"))
}
