// Package metrics keeps process-local counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	passesStarted  = newCounter("generation_passes_started_total", "Advance passes that acquired the subject gate")
	passesRejected = newCounter("generation_passes_rejected_total", "Advance calls rejected while a pass was running")
	stagesDone     = newLabeled("generation_stages_completed_total", "Stage artifacts committed", "stage")
	stagesDeferred = newLabeled("generation_rate_limited_total", "Stage calls deferred by upstream rate limits", "stage")
	failures       = newLabeled("generation_failures_total", "Recorded generation failures", "code")
	documentsDone  = newCounter("generation_documents_completed_total", "Final documents written")
	stageLatency   = newHistogram("generation_stage_duration_ms", "Stage call duration in milliseconds",
		500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 240000)

	contReceived  = newCounter("continuations_received_total", "Deferred continuations received by workers")
	contFailed    = newCounter("continuations_failed_total", "Deferred continuations left for redelivery")
	contDiscarded = newCounter("continuations_discarded_total", "Unprocessable continuations deleted")

	throttled = newLabeled("http_requests_throttled_total", "Control API requests rejected by the rate limiter", "class")
	panics    = newCounter("http_panics_recovered_total", "Handler panics recovered")
)

// IncPassStarted counts an advance pass that acquired the subject gate.
func IncPassStarted() { passesStarted.inc() }

// IncPassRejected counts an advance call rejected because a pass was already running.
func IncPassRejected() { passesRejected.inc() }

// IncStageCompleted counts a stage artifact committed for the given stage.
func IncStageCompleted(stage string) { stagesDone.inc(stage) }

// IncRateLimited counts a stage call deferred by an upstream rate limit.
func IncRateLimited(stage string) { stagesDeferred.inc(stage) }

// IncFailure counts a recorded failure by error code.
func IncFailure(code string) { failures.inc(code) }

func IncDocumentCompleted() { documentsDone.inc() }
func IncContinuationReceived() { contReceived.inc() }
func IncContinuationFailed() { contFailed.inc() }
func IncContinuationDiscarded() { contDiscarded.inc() }
func IncThrottled(class string) { throttled.inc(class) }
func IncPanicRecovered() { panics.inc() }

// ObserveStageDurationMs records a stage call duration. Negative values count as zero.
func ObserveStageDurationMs(ms float64) { stageLatency.observe(max(ms, 0)) }

// Handler serves Render on /metrics.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render writes every family in declaration order.
func Render() string {
	var b strings.Builder
	for _, f := range registry {
		f.write(&b)
	}
	return b.String()
}

func header(w io.Writer, name, help, kind string) {
	io.WriteString(w, "# HELP "+name+" "+help+"\n# TYPE "+name+" "+kind+"\n")
}
