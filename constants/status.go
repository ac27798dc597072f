package constants

// SessionState is the canonical state label for a document session.
type SessionState string

// Stable values (store these exact strings in the archive).
const (
	StateUploaded             SessionState = "UPLOADED"
	StateClassified           SessionState = "CLASSIFIED"
	StateExtracting           SessionState = "EXTRACTING"
	StateAwaitingConfirmation SessionState = "AWAITING_CONFIRMATION"
	StateConfirmed            SessionState = "CONFIRMED"
	StateEditRequested        SessionState = "EDIT_REQUESTED"
	StateMergingFeedback      SessionState = "MERGING_FEEDBACK"
	StateFinalized            SessionState = "FINALIZED"
	StateAborted              SessionState = "ABORTED"
)

// Terminal reports whether no further transitions can leave s.
func (s SessionState) Terminal() bool {
	return s == StateFinalized || s == StateAborted
}

// AbortReason is the recorded cause for a session ending in StateAborted.
type AbortReason string

const (
	AbortUnclassifiable   AbortReason = "unclassifiable"
	AbortExtractionFailed AbortReason = "extraction_failed"
	AbortMaxIterations    AbortReason = "max_iterations"
	AbortUserRequested    AbortReason = "user_requested"
)

// Provenance tags who produced a field value.
type Provenance string

const (
	ProvenanceModel Provenance = "model"
	ProvenanceHuman Provenance = "human"
)
