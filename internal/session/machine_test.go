package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

const completeVendorJSON = `{"company_name":"Acme Corp","effective_date":"2026-01-15","total":1200.50}`

type fakeClassifier struct {
	result classify.Result
	err    error
}

func (f *fakeClassifier) Classify(context.Context, extract.DocumentRef) (classify.Result, error) {
	return f.result, f.err
}

// fakeCapability replays scripted responses and records the prior context of
// each call.
type fakeCapability struct {
	mu        sync.Mutex
	calls     int
	priors    []*extract.Context
	responses []func() ([]byte, error)
}

func (f *fakeCapability) Extract(_ context.Context, _ extract.DocumentRef, _ constants.ContractType, prior *extract.Context) ([]byte, error) {
	f.mu.Lock()
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	f.priors = append(f.priors, prior)
	resp := f.responses[idx]
	f.mu.Unlock()
	return resp()
}

func respond(raw string) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte(raw), nil }
}

type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) Render(context.Context, *model.ExtractionResult) (render.PDFHandle, error) {
	f.calls++
	if f.err != nil {
		return render.PDFHandle{}, f.err
	}
	return render.PDFHandle{ID: "pdf-1", Path: "/tmp/pdf-1.pdf", Size: 42}, nil
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []Snapshot
}

func (f *fakeArchive) Save(_ context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, snap)
	return nil
}

func (f *fakeArchive) last() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return Snapshot{}, false
	}
	return f.saved[len(f.saved)-1], true
}

type fixture struct {
	session    *Session
	capability *fakeCapability
	renderer   *fakeRenderer
	archive    *fakeArchive
}

func newFixture(t *testing.T, maxIterations int, responses ...func() ([]byte, error)) *fixture {
	t.Helper()
	if len(responses) == 0 {
		responses = []func() ([]byte, error){respond(completeVendorJSON)}
	}
	validator := schema.NewValidator(schema.DefaultRegistry())
	capability := &fakeCapability{responses: responses}
	renderer := &fakeRenderer{}
	arch := &fakeArchive{}

	deps := Deps{
		Adapter: extract.NewAdapter(capability, validator, extract.Config{
			Retries:        1,
			Timeout:        time.Second,
			BackoffInitial: time.Millisecond,
		}, nil),
		Validator:  validator,
		Classifier: &fakeClassifier{result: classify.Result{ContractType: constants.ContractVendor, Confidence: 0.95}},
		Renderer:   renderer,
		Tracker:    convergence.NewTracker(convergence.Config{MaxIterations: maxIterations}),
		Archive:    arch,
	}
	doc := extract.DocumentRef{ID: "doc-1", Filename: "contract.pdf", Format: constants.FormatPDF, Path: "/tmp/contract.pdf"}
	return &fixture{
		session:    New(doc, deps),
		capability: capability,
		renderer:   renderer,
		archive:    arch,
	}
}

func TestStart_HappyPathAwaitsConfirmation(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.session.Start(context.Background()))

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAwaitingConfirmation, snap.State)
	assert.Equal(t, constants.ContractVendor, snap.ContractType)
	assert.False(t, snap.NeedsAttention)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 1, snap.Result.Generation)
	assert.Empty(t, snap.History)
}

func TestStart_UnclassifiableAborts(t *testing.T) {
	f := newFixture(t, 5)
	f.session.deps.Classifier = &fakeClassifier{err: classify.ErrUnclassifiable}

	require.NoError(t, f.session.Start(context.Background()))
	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAborted, snap.State)
	assert.Equal(t, constants.AbortUnclassifiable, snap.AbortReason)
	assert.Equal(t, 0, f.capability.calls)

	archived, ok := f.archive.last()
	require.True(t, ok)
	assert.Equal(t, constants.StateAborted, archived.State)
}

func TestStart_UnknownVerdictAborts(t *testing.T) {
	f := newFixture(t, 5)
	f.session.deps.Classifier = &fakeClassifier{result: classify.Result{ContractType: constants.ContractUnknown}}

	require.NoError(t, f.session.Start(context.Background()))
	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAborted, snap.State)
	assert.Equal(t, constants.AbortUnclassifiable, snap.AbortReason)
}

func TestStart_MissingRequiredFieldNeedsAttention(t *testing.T) {
	f := newFixture(t, 5, respond(`{"company_name":"Acme Corp","total":1200.50}`))
	require.NoError(t, f.session.Start(context.Background()))

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAwaitingConfirmation, snap.State)
	assert.True(t, snap.NeedsAttention)
	require.NotEmpty(t, snap.Violations)
	assert.Equal(t, "effective_date", snap.Violations[0].Field)

	// the padded placeholder keeps the full required field set visible
	date, ok := snap.Result.Get("effective_date")
	require.True(t, ok)
	assert.True(t, date.Value.Null)

	// confirming a result with outstanding violations is rejected
	err := f.session.Confirm(context.Background())
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NEEDS_ATTENTION", appErr.Code)
}

func TestConfirm_RendersAndFinalizes(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.session.Start(context.Background()))
	require.NoError(t, f.session.Confirm(context.Background()))

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateFinalized, snap.State)
	require.NotNil(t, snap.PDF)
	assert.Equal(t, "pdf-1", snap.PDF.ID)
	assert.False(t, snap.RenderPending)

	archived, ok := f.archive.last()
	require.True(t, ok)
	assert.Equal(t, constants.StateFinalized, archived.State)
}

func TestConfirm_RenderFailureStaysConfirmed(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.session.Start(context.Background()))

	f.renderer.err = render.ErrRenderFailed
	err := f.session.Confirm(context.Background())
	assert.True(t, errors.Is(err, render.ErrRenderFailed))

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateConfirmed, snap.State)
	assert.True(t, snap.RenderPending)
	assert.Nil(t, snap.PDF)

	// rendering can be retried without re-running extraction
	f.renderer.err = nil
	require.NoError(t, f.session.RetryRender(context.Background()))
	snap = f.session.Snapshot()
	assert.Equal(t, constants.StateFinalized, snap.State)
	assert.Equal(t, 1, f.capability.calls)
}

func TestRetryRender_WithoutPendingRender(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.session.Start(context.Background()))
	assert.Error(t, f.session.RetryRender(context.Background()))
}

func TestSubmitFeedback_CorrectionPinnedAcrossPass(t *testing.T) {
	f := newFixture(t, 5,
		respond(completeVendorJSON),
		respond(`{"company_name":"Model Overwrites","effective_date":"2026-01-15","total":999}`),
	)
	require.NoError(t, f.session.Start(context.Background()))

	fb := feedback.UserFeedback{
		Instructions: "the company name is wrong",
		Corrections:  model.FieldMap{"company_name": model.StringValue("Corrected Inc")},
	}
	require.NoError(t, f.session.SubmitFeedback(context.Background(), fb))

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAwaitingConfirmation, snap.State)
	assert.Equal(t, 1, snap.Iterations)
	assert.Equal(t, 2, snap.Result.Generation)

	// the user's value wins over whatever the model returned
	name, ok := snap.Result.Get("company_name")
	require.True(t, ok)
	assert.Equal(t, "Corrected Inc", name.Value.Str)
	assert.Equal(t, constants.ProvenanceHuman, name.Provenance)

	// the pin was forwarded to the capability
	require.Len(t, f.capability.priors, 2)
	assert.Nil(t, f.capability.priors[0])
	require.NotNil(t, f.capability.priors[1])
	assert.Equal(t, model.StringValue("Corrected Inc"), f.capability.priors[1].Pinned["company_name"])

	// history holds the superseded generation with its feedback
	require.Len(t, snap.History, 1)
	assert.Equal(t, 1, snap.History[0].Result.Generation)
	require.NotNil(t, snap.History[0].Feedback)
	assert.Equal(t, "the company name is wrong", snap.History[0].Feedback.Instructions)
}

func TestSubmitFeedback_EmptyRejectedWithoutTransition(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.session.Start(context.Background()))
	before := f.session.Snapshot()

	err := f.session.SubmitFeedback(context.Background(), feedback.UserFeedback{})
	assert.True(t, errors.Is(err, common.ErrEmptyFeedback))

	after := f.session.Snapshot()
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Iterations, after.Iterations)
	assert.Empty(t, after.History)
	assert.Equal(t, 1, f.capability.calls)
}

func TestSubmitFeedback_MaxIterationsAbortPreservesResult(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.session.Start(context.Background()))

	fb := feedback.UserFeedback{Instructions: "adjust"}
	require.NoError(t, f.session.SubmitFeedback(context.Background(), fb))
	require.Equal(t, constants.StateAwaitingConfirmation, f.session.Snapshot().State)

	// second cycle exceeds the bound
	require.NoError(t, f.session.SubmitFeedback(context.Background(), fb))
	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAborted, snap.State)
	assert.Equal(t, constants.AbortMaxIterations, snap.AbortReason)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 2, snap.Result.Generation)
}

func TestExtractionFailureAborts(t *testing.T) {
	f := newFixture(t, 5, func() ([]byte, error) {
		return nil, &extract.Error{Kind: extract.ErrAuthorization, Cause: errors.New("401")}
	})
	require.NoError(t, f.session.Start(context.Background()))

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAborted, snap.State)
	assert.Equal(t, constants.AbortExtractionFailed, snap.AbortReason)
}

func TestTransientExhaustionAborts(t *testing.T) {
	f := newFixture(t, 5, func() ([]byte, error) {
		return nil, &extract.Error{Kind: extract.ErrTransient, Cause: errors.New("503")}
	})
	require.NoError(t, f.session.Start(context.Background()))

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAborted, snap.State)
	assert.Equal(t, constants.AbortExtractionFailed, snap.AbortReason)
	// first attempt plus one retry
	assert.Equal(t, 2, f.capability.calls)
}

func TestAbort_UserRequested(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.session.Start(context.Background()))
	require.NoError(t, f.session.Abort(context.Background(), ""))

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateAborted, snap.State)
	assert.Equal(t, constants.AbortUserRequested, snap.AbortReason)
}

func TestTerminalStateRejectsFurtherActions(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.session.Start(context.Background()))
	require.NoError(t, f.session.Abort(context.Background(), constants.AbortUserRequested))

	assert.True(t, errors.Is(f.session.Confirm(context.Background()), common.ErrTerminalState))
	assert.True(t, errors.Is(f.session.SubmitFeedback(context.Background(), feedback.UserFeedback{Instructions: "x"}), common.ErrTerminalState))
	assert.True(t, errors.Is(f.session.Abort(context.Background(), constants.AbortUserRequested), common.ErrTerminalState))
}

func TestSnapshotIsolation(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.session.Start(context.Background()))

	snap := f.session.Snapshot()
	snap.Result.Fields[0].Value = model.StringValue("tampered")

	fresh := f.session.Snapshot()
	name, ok := fresh.Result.Get("company_name")
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", name.Value.Str)
}

func TestCancelInflight_RestoresPreState(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := newFixture(t, 5, func() ([]byte, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, context.Canceled
	})

	done := make(chan error, 1)
	go func() { done <- f.session.Start(context.Background()) }()

	<-started
	f.session.CancelInflight()
	close(release)
	require.NoError(t, <-done)

	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateClassified, snap.State)
	assert.Nil(t, snap.Result)

	// a later pass reuses the freed generation counter
	assert.Equal(t, 0, f.session.generation)

	// the parked session cannot restart its pass; aborting is the exit
	require.NoError(t, f.session.Abort(context.Background(), constants.AbortUserRequested))
	snap = f.session.Snapshot()
	assert.Equal(t, constants.StateAborted, snap.State)
	assert.Equal(t, constants.AbortUserRequested, snap.AbortReason)
}
