// Package feedback combines a prior extraction result with user corrections
// into the context for the next extraction pass.
package feedback

import (
	"time"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/common"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
)

// UserFeedback is one review submission: free-text instructions plus
// optional targeted field corrections. It is associated with exactly one
// result generation and immutable once submitted.
type UserFeedback struct {
	Instructions string         `json:"instructions"`
	Corrections  model.FieldMap `json:"corrections,omitempty"`
	Generation   int            `json:"generation"`
	SubmittedAt  time.Time        `json:"submitted_at"`
}

// Empty reports whether the submission carries nothing to apply.
func (f UserFeedback) Empty() bool {
	return f.Instructions == "" && len(f.Corrections) == 0
}

// Merge combines the previous result with the user's feedback into the
// context for the next extraction pass.
//
// Targeted corrections become pinned human-provenance values the model must
// not overwrite. Pins survive across iterations: every field the previous
// result carries with human provenance stays pinned until the user issues a
// newer correction for it (last human edit wins). Free-text instructions
// ride along as guidance for the remaining fields.
//
// An edit cycle with nothing to apply is a caller error: empty feedback with
// no prior pins returns ErrEmptyFeedback.
func Merge(previous *model.ExtractionResult, fb UserFeedback) (*extract.Context, error) {
	pinned := make(model.FieldMap)
	if previous != nil {
		for _, f := range previous.Fields {
			if f.Provenance == constants.ProvenanceHuman {
				pinned[f.Name] = f.Value
			}
		}
	}
	if fb.Empty() && len(pinned) == 0 {
		return nil, common.ErrEmptyFeedback
	}
	for name, val := range fb.Corrections {
		pinned[name] = val
	}

	return &extract.Context{
		Previous:     previous,
		Instructions: fb.Instructions,
		Pinned:       pinned,
	}, nil
}
