// Package classify is the document-type classifier collaborator.
package classify

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
)

// ErrUnclassifiable means the classifier could not assign a known contract
// type; the session is aborted rather than extracted against a guessed
// schema.
var ErrUnclassifiable = errors.New("document could not be classified")

// Result is a stored classification verdict.
type Result struct {
	ContractType constants.ContractType `json:"contract_type"`
	Confidence   float32                `json:"confidence"`
	Rationale    string                 `json:"rationale,omitempty"`
	ModelName    string                 `json:"model_name,omitempty"`
}

// Classifier assigns a contract type to an uploaded document.
type Classifier interface {
	Classify(ctx context.Context, doc extract.DocumentRef) (Result, error)
}
