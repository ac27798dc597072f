package extract

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
)

// Context carries everything the capability needs for a corrected pass:
// the prior result, the user's free-text guidance, and the pinned
// human-provenance values the model must not overwrite.
type Context struct {
	Previous     *model.ExtractionResult
	Instructions string
	Pinned       model.FieldMap
}

// ErrorKind classifies extraction failures for the retry policy.
type ErrorKind string

const (
	ErrTransient      ErrorKind = "transient"
	ErrMalformedInput ErrorKind = "malformed_input"
	ErrUnparseable    ErrorKind = "unparseable"
	ErrAuthorization  ErrorKind = "authorization"
)

// Error is the typed failure returned by the adapter.
type Error struct {
	Kind  ErrorKind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("extraction %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the adapter may retry this failure class.
func (e *Error) Retryable() bool { return e.Kind == ErrTransient }

// Capability is the raw external extraction capability wrapped by the
// adapter. Implementations return the model's raw JSON output.
type Capability interface {
	Extract(ctx context.Context, doc DocumentRef, ct constants.ContractType, prior *Context) ([]byte, error)
}

// DocumentRef is the opaque read-only handle to an uploaded document. The
// orchestrator never copies document bytes into its own state.
type DocumentRef struct {
	ID       string
	Filename string
	Format   constants.DocumentFormat
	Path     string
}
