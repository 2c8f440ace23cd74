package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendationForEverySegment(t *testing.T) {
	for _, seg := range AllSegments() {
		t.Run(seg.String(), func(t *testing.T) {
			rec := RecommendationFor(seg)
			assert.Equal(t, seg, rec.Segment)
			assert.NotEmpty(t, rec.Description)
			assert.NotEmpty(t, rec.Actions)
			assert.NotEmpty(t, rec.Priority)
		})
	}

	// Out-of-range values still get a playbook
	rec := RecommendationFor(Segment(99))
	assert.Equal(t, Others, rec.Segment)
}

func TestSegmentJSON(t *testing.T) {
	for _, seg := range AllSegments() {
		data, err := json.Marshal(seg)
		require.NoError(t, err)

		var back Segment
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, seg, back)
	}

	var s Segment
	assert.Error(t, json.Unmarshal([]byte(`"Platinum"`), &s))
}

func TestParseSegment(t *testing.T) {
	seg, err := ParseSegment(" at risk ")
	require.NoError(t, err)
	assert.Equal(t, AtRisk, seg)

	_, err = ParseSegment("nobody")
	var paramErr *InvalidParameterError
	assert.True(t, errors.As(err, &paramErr))
}

func TestChurnRiskAndTierJSON(t *testing.T) {
	type row struct {
		Risk ChurnRisk `json:"risk"`
		Tier ValueTier `json:"tier"`
	}

	data, err := json.Marshal(row{Risk: ChurnHigh, Tier: TierMedium})
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk":"High","tier":"Medium CLV"}`, string(data))

	var back row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ChurnHigh, back.Risk)
	assert.Equal(t, TierMedium, back.Tier)
}

func TestErrorMessages(t *testing.T) {
	err := NewMissingColumnsError("data.csv", []string{"Country", "UnitPrice"})
	assert.Equal(t, "data load error for data.csv: missing required columns: Country, UnitPrice", err.Error())

	err = NewInsufficientDataError("forecast", 2, 1)
	assert.Equal(t, "insufficient data for forecast: need at least 2, have 1", err.Error())

	err = NewInvalidParameterError("min_support", "must be within [0, 1]", 1.5)
	assert.Equal(t, "invalid parameter 'min_support': must be within [0, 1] (value: 1.5)", err.Error())

	cause := errors.New("permission denied")
	err = NewDataLoadError("data.csv", cause)
	assert.ErrorIs(t, err, cause)
}
