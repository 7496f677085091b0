package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eventiq/recoengine/internal/errs"
)

func TestInteraction_ValidateRejectsMissingRequiredFields(t *testing.T) {
	err := Interaction{EventID: "e1", Type: InteractionView, Timestamp: time.Now()}.Validate()
	assert.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidRequest))
}

func TestInteraction_ValidateRejectsOutOfRangeRating(t *testing.T) {
	bad := 6.0
	err := Interaction{UserID: "u1", EventID: "e1", Type: InteractionRate, Rating: &bad, Timestamp: time.Now()}.Validate()
	assert.Error(t, err)
}

func TestInteraction_ValidateAcceptsWellFormed(t *testing.T) {
	err := Interaction{UserID: "u1", EventID: "e1", Type: InteractionView, Timestamp: time.Now()}.Validate()
	assert.NoError(t, err)
}

func TestRecommendationRequest_ValidateAcceptsZeroCountAsDefault(t *testing.T) {
	err := RecommendationRequest{UserID: "u1"}.Validate()
	assert.NoError(t, err, "count 0 means \"use the default\", not invalid")
}

func TestRecommendationRequest_ValidateRejectsMissingUserID(t *testing.T) {
	err := RecommendationRequest{Count: 10}.Validate()
	assert.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidRequest))
}

func TestRecommendationRequest_ValidateRejectsOutOfRangeCount(t *testing.T) {
	err := RecommendationRequest{UserID: "u1", Count: 500}.Validate()
	assert.Error(t, err)
}

func TestRecommendationRequest_ValidateRejectsBadLocation(t *testing.T) {
	err := RecommendationRequest{UserID: "u1", Location: &GeoPoint{Lat: 999, Lon: 0}}.Validate()
	assert.Error(t, err)
}

func TestSimilarEventsRequest_ValidateRequiresEventID(t *testing.T) {
	err := SimilarEventsRequest{Count: 5}.Validate()
	assert.Error(t, err)

	ok := SimilarEventsRequest{EventID: "e1"}.Validate()
	assert.NoError(t, ok)
}
