package metrics

import (
	"time"

	obserrors "github.com/target/domain-enricher/internal/observability/errors"
	"github.com/target/domain-enricher/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names emitted for a unit of work.
const (
	TransitionClaimed   = "claimed"
	TransitionCompleted = "completed"
	TransitionLost      = "lost"
	TransitionReclaimed = "reclaimed"
)

// StageMetric captures details about a stage lifecycle event for metric emission.
type StageMetric struct {
	Stage      string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitStageLifecycle emits standardised stage lifecycle metrics.
func EmitStageLifecycle(sink statsd.Sink, in StageMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":      in.Stage,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("stage.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("stage.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
