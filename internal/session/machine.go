// Package session owns the per-document workflow: the state machine that
// sequences classification, extraction, review and rendering, and the
// registry that scopes one Session to one document.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/classify"
	"github.com/joseph-ayodele/contracts-desk/internal/common"
	"github.com/joseph-ayodele/contracts-desk/internal/convergence"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/feedback"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
	"github.com/joseph-ayodele/contracts-desk/internal/render"
	"github.com/joseph-ayodele/contracts-desk/internal/schema"
)

// HistoryEntry pairs a superseded result with the feedback that replaced it.
// History is append-only; entries are never mutated after creation.
type HistoryEntry struct {
	Result   *model.ExtractionResult `json:"result"`
	Feedback *feedback.UserFeedback    `json:"feedback"`
}

// Snapshot is the immutable view get_state returns. Reading a snapshot
// never observes a partially applied transition.
type Snapshot struct {
	SessionID      string                    `json:"session_id"`
	DocumentID     string                    `json:"document_id"`
	State          constants.SessionState    `json:"state"`
	ContractType   constants.ContractType    `json:"contract_type,omitempty"`
	Iterations     int                       `json:"iterations"`
	NeedsAttention bool                      `json:"needs_attention"`
	Violations     []schema.Violation        `json:"violations,omitempty"`
	RenderPending  bool                      `json:"render_pending"`
	AbortReason    constants.AbortReason     `json:"abort_reason,omitempty"`
	Result         *model.ExtractionResult `json:"result,omitempty"`
	History        []HistoryEntry            `json:"history,omitempty"`
	PDF            *render.PDFHandle         `json:"pdf,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// Archiver persists terminal sessions.
type Archiver interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Deps are the collaborators one session drives.
type Deps struct {
	Adapter    *extract.Adapter
	Validator  *schema.Validator
	Classifier classify.Classifier
	Renderer   render.Renderer
	Tracker    *convergence.Tracker
	Archive    Archiver
	Log        *slog.Logger
}

// Session is the state machine for one document. All writes are serialized
// by the session mutex; the extraction call is the only suspension point
// and runs with the mutex released.
type Session struct {
	mu   sync.Mutex
	deps Deps

	id  string
	doc extract.DocumentRef

	state        constants.SessionState
	contractType constants.ContractType
	result       *model.ExtractionResult
	history      []HistoryEntry
	iterations   int

	violations     []schema.Violation
	needsAttention bool
	renderPending  bool
	abortReason    constants.AbortReason
	pdf            *render.PDFHandle

	// generation is the counter stamped on the in-flight extraction; a
	// result arriving for an older generation is stale and discarded.
	generation     int
	inflightCancel context.CancelFunc

	createdAt time.Time
	updatedAt time.Time
}

// New registers a fresh session for a document handle. Initial state is
// Uploaded with classification pending.
func New(doc extract.DocumentRef, deps Deps) *Session {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	now := time.Now().UTC()
	return &Session{
		deps:      deps,
		id:        uuid.New().String(),
		doc:       doc,
		state:     constants.StateUploaded,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns a deep-copied view of the current workflow state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	hist := make([]HistoryEntry, 0, len(s.history))
	for _, h := range s.history {
		entry := HistoryEntry{Result: h.Result.Clone()}
		if h.Feedback != nil {
			fb := *h.Feedback
			entry.Feedback = &fb
		}
		hist = append(hist, entry)
	}
	var pdf *render.PDFHandle
	if s.pdf != nil {
		p := *s.pdf
		pdf = &p
	}
	violations := make([]schema.Violation, len(s.violations))
	copy(violations, s.violations)
	if len(violations) == 0 {
		violations = nil
	}
	return Snapshot{
		SessionID:      s.id,
		DocumentID:     s.doc.ID,
		State:          s.state,
		ContractType:   s.contractType,
		Iterations:     s.iterations,
		NeedsAttention: s.needsAttention,
		Violations:     violations,
		RenderPending:  s.renderPending,
		AbortReason:    s.abortReason,
		Result:         s.result.Clone(),
		History:        hist,
		PDF:            pdf,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}
}

// Start runs classification and the first extraction pass. Called once,
// right after creation.
func (s *Session) Start(ctx context.Context) error {
	ctx = common.WithSessionID(ctx, s.id)
	s.mu.Lock()
	if s.state != constants.StateUploaded {
		s.mu.Unlock()
		return common.NewAppError("BAD_STATE", "session already started", common.ErrInvalidInput)
	}
	doc := s.doc
	s.mu.Unlock()

	verdict, err := s.deps.Classifier.Classify(ctx, doc)
	if err != nil || !verdict.ContractType.IsExtractable() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.deps.Log.Warn("session.unclassifiable", "session_id", s.id, "error", err, "verdict", verdict.ContractType)
		s.abortLocked(ctx, constants.AbortUnclassifiable)
		return nil
	}

	s.mu.Lock()
	s.contractType = verdict.ContractType
	s.transitionLocked(constants.StateClassified)
	s.mu.Unlock()

	return s.runExtraction(ctx, nil, constants.StateClassified)
}

// Confirm accepts the current result and drives rendering. A render failure
// keeps the session at Confirmed with render_pending set so rendering can be
// retried without re-running extraction.
func (s *Session) Confirm(ctx context.Context) error {
	ctx = common.WithSessionID(ctx, s.id)
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return common.ErrTerminalState
	}
	if s.state != constants.StateAwaitingConfirmation {
		s.mu.Unlock()
		return common.NewAppError("BAD_STATE", "nothing awaiting confirmation", common.ErrInvalidInput)
	}
	if s.needsAttention {
		s.mu.Unlock()
		return common.NewAppError("NEEDS_ATTENTION",
			"result has outstanding schema violations; submit feedback instead", common.ErrInvalidInput)
	}

	decision := s.deps.Tracker.Decide(s.iterations, convergence.Input{Confirmed: true})
	if decision.Outcome != convergence.Accept {
		s.mu.Unlock()
		return common.NewAppError("BAD_DECISION", "confirm did not accept", common.ErrInternal)
	}
	s.transitionLocked(constants.StateConfirmed)
	s.mu.Unlock()

	return s.render(ctx)
}

// RetryRender re-runs the render collaborator for a Confirmed session whose
// earlier render failed.
func (s *Session) RetryRender(ctx context.Context) error {
	ctx = common.WithSessionID(ctx, s.id)
	s.mu.Lock()
	if s.state != constants.StateConfirmed || !s.renderPending {
		s.mu.Unlock()
		return common.NewAppError("BAD_STATE", "no pending render to retry", common.ErrInvalidInput)
	}
	s.mu.Unlock()
	return s.render(ctx)
}

func (s *Session) render(ctx context.Context) error {
	s.mu.Lock()
	result := s.result.Clone()
	s.mu.Unlock()

	handle, err := s.deps.Renderer.Render(ctx, result)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != constants.StateConfirmed {
		// Aborted while rendering; drop the outcome.
		return nil
	}
	if err != nil {
		s.deps.Log.Warn("session.render_pending", "session_id", s.id, "error", err)
		s.renderPending = true
		s.updatedAt = time.Now().UTC()
		return err
	}
	s.pdf = &handle
	s.renderPending = false
	s.transitionLocked(constants.StateFinalized)
	s.archiveLocked(ctx)
	return nil
}

// SubmitFeedback runs one refinement cycle: the previous result and the
// feedback are appended to history, merged into the next extraction context,
// and a corrected pass is started. Empty feedback is rejected before any
// state transition. Exceeding the configured iteration bound aborts with
// max_iterations, preserving the last result.
func (s *Session) SubmitFeedback(ctx context.Context, fb feedback.UserFeedback) error {
	ctx = common.WithSessionID(ctx, s.id)
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return common.ErrTerminalState
	}
	if s.state != constants.StateAwaitingConfirmation {
		s.mu.Unlock()
		return common.NewAppError("BAD_STATE", "session is not reviewing a result", common.ErrInvalidInput)
	}

	fb.Generation = s.result.Generation
	fb.SubmittedAt = time.Now().UTC()

	// Merge first: a submission with nothing to apply must fail without
	// touching workflow state.
	mergeCtx, err := feedback.Merge(s.result, fb)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	decision := s.deps.Tracker.Decide(s.iterations, convergence.Input{Feedback: &fb})
	if decision.Outcome == convergence.Abort {
		s.deps.Log.Warn("session.iteration_limit",
			"session_id", s.id, "iterations", s.iterations, "max", s.deps.Tracker.MaxIterations())
		s.abortLocked(ctx, decision.Reason)
		s.mu.Unlock()
		return nil
	}

	s.transitionLocked(constants.StateEditRequested)
	s.history = append(s.history, HistoryEntry{Result: s.result, Feedback: &fb})
	s.iterations++
	s.transitionLocked(constants.StateMergingFeedback)
	s.mu.Unlock()

	return s.runExtraction(ctx, mergeCtx, constants.StateMergingFeedback)
}

// Abort ends the session on user request.
func (s *Session) Abort(ctx context.Context, reason constants.AbortReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return common.ErrTerminalState
	}
	if reason == "" {
		reason = constants.AbortUserRequested
	}
	s.abortLocked(ctx, reason)
	return nil
}

// runExtraction performs one extraction pass. The session mutex is released
// for the duration of the external call; preState is restored if the call
// is cancelled, and a result arriving for a stale generation is discarded.
func (s *Session) runExtraction(ctx context.Context, prior *extract.Context, preState constants.SessionState) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	callCtx, cancel := context.WithCancel(ctx)
	s.inflightCancel = cancel
	s.transitionLocked(constants.StateExtracting)
	doc := s.doc
	ct := s.contractType
	s.mu.Unlock()
	defer cancel()

	result, err := s.deps.Adapter.Extract(callCtx, doc, ct, gen, prior)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflightCancel = nil

	if s.state != constants.StateExtracting || gen != s.generation {
		// The session moved on (abort or cancel) while the call was in
		// flight; whatever arrived is stale.
		s.deps.Log.Info("session.stale_result_discarded", "session_id", s.id, "generation", gen)
		return nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// User abandoned the call; leave the workflow where it was.
			s.deps.Log.Info("session.extraction_cancelled", "session_id", s.id, "generation", gen)
			s.state = preState
			s.generation--
			s.updatedAt = time.Now().UTC()
			return nil
		}
		var ee *extract.Error
		if !errors.As(err, &ee) {
			ee = &extract.Error{Kind: extract.ErrTransient, Cause: err}
		}
		decision := s.deps.Tracker.Decide(s.iterations, convergence.Input{ExtractErr: ee})
		s.deps.Log.Error("session.extraction_failed",
			"session_id", s.id, "generation", gen, "kind", ee.Kind, "error", err)
		s.abortLocked(ctx, decision.Reason)
		return nil
	}

	violations, verr := s.deps.Validator.Validate(ct, result.AsFieldMap())
	if verr != nil {
		s.deps.Log.Error("session.validation_error", "session_id", s.id, "error", verr)
		s.abortLocked(ctx, constants.AbortExtractionFailed)
		return nil
	}

	s.result = result
	s.violations = violations
	s.needsAttention = len(violations) > 0
	s.transitionLocked(constants.StateAwaitingConfirmation)
	return nil
}

// CancelInflight cancels a suspended extraction call, if any. Workflow state
// is left at its pre-call value by the runExtraction recovery path, and the
// machine offers no way to resume the cancelled pass: cancellation is the
// prelude to Abort or registry teardown, not a pause. A caller that wants the
// result after all starts over with a new session for the document.
func (s *Session) CancelInflight() {
	s.mu.Lock()
	cancel := s.inflightCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) transitionLocked(next constants.SessionState) {
	s.deps.Log.Info("session.transition",
		"session_id", s.id, "from", s.state, "to", next, "iterations", s.iterations)
	s.state = next
	s.updatedAt = time.Now().UTC()
}

func (s *Session) abortLocked(ctx context.Context, reason constants.AbortReason) {
	if s.inflightCancel != nil {
		s.inflightCancel()
		s.inflightCancel = nil
	}
	s.abortReason = reason
	s.transitionLocked(constants.StateAborted)
	s.archiveLocked(ctx)
}

func (s *Session) archiveLocked(ctx context.Context) {
	if s.deps.Archive == nil {
		return
	}
	if err := s.deps.Archive.Save(ctx, s.snapshotLocked()); err != nil {
		// Archiving is best effort; a failed write never un-terminates the
		// session.
		s.deps.Log.Error("session.archive_failed", "session_id", s.id, "error", err)
	}
}
