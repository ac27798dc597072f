// Package convergence decides, per iteration, whether a session accepts,
// retries with feedback, or aborts.
package convergence

import (
	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/feedback"
)

// Outcome is the tracker's verdict for one iteration.
type Outcome string

const (
	Accept               Outcome = "accept"
	ContinueWithFeedback Outcome = "continue_with_feedback"
	Abort                Outcome = "abort"
)

// Decision is the tracker's verdict plus its payload.
type Decision struct {
	Outcome  Outcome
	Feedback *feedback.UserFeedback
	Reason   constants.AbortReason
}

// Input is the per-iteration view the tracker decides on. Exactly one of
// Confirmed, Feedback or ExtractErr is expected to be set.
type Input struct {
	Confirmed  bool
	Feedback   *feedback.UserFeedback
	ExtractErr *extract.Error
}

// Config bounds the refinement loop. MaxIterations is a deployment value;
// the unbounded "repeat until confirmed" loop of the original workflow is a
// correctness bug, not a feature.
type Config struct {
	MaxIterations int
}

// Tracker applies the convergence policy.
type Tracker struct {
	cfg Config
}

// NewTracker builds a tracker with the configured bound.
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	return &Tracker{cfg: cfg}
}

// MaxIterations exposes the configured bound.
func (t *Tracker) MaxIterations() int { return t.cfg.MaxIterations }

// Decide maps the user's action (or the adapter's failure) at the given
// iteration count onto a workflow decision. iterations is the number of
// feedback cycles already consumed.
func (t *Tracker) Decide(iterations int, in Input) Decision {
	switch {
	case in.Confirmed:
		return Decision{Outcome: Accept}
	case in.ExtractErr != nil && !in.ExtractErr.Retryable():
		return Decision{Outcome: Abort, Reason: constants.AbortExtractionFailed}
	case in.ExtractErr != nil:
		// Transient failures that reach the tracker have exhausted the
		// adapter's retry budget.
		return Decision{Outcome: Abort, Reason: constants.AbortExtractionFailed}
	case in.Feedback != nil:
		if iterations+1 > t.cfg.MaxIterations {
			return Decision{Outcome: Abort, Reason: constants.AbortMaxIterations}
		}
		return Decision{Outcome: ContinueWithFeedback, Feedback: in.Feedback}
	default:
		return Decision{Outcome: Abort, Reason: constants.AbortUserRequested}
	}
}
