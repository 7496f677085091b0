package models

import (
	"github.com/go-playground/validator/v10"

	"github.com/eventiq/recoengine/internal/errs"
)

// validate is shared across the package: one long-lived
// *validator.Validate per process instead of constructing one per
// request.
var validate = validator.New()

// Validate checks an ingested Interaction against the struct tags above,
// returning an *errs.Error of kind InvalidRequest on failure so callers at
// the ingestion boundary can reject it with no partial work.
func (i Interaction) Validate() error {
	if err := validate.Struct(i); err != nil {
		return errs.New(errs.InvalidRequest, err)
	}
	return nil
}

// Validate checks a RecommendationRequest at the orchestrator boundary.
// Count == 0 is accepted here and treated by the orchestrator as "use the
// default of 20"; only an explicit out-of-range or negative count is
// rejected.
func (r RecommendationRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errs.New(errs.InvalidRequest, err)
	}
	return nil
}

// Validate checks a SimilarEventsRequest at the similar-events boundary.
func (r SimilarEventsRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errs.New(errs.InvalidRequest, err)
	}
	return nil
}
