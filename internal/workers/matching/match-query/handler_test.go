// internal/workers/matching/match-query/handler_test.go
package matchquery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"resume-matcher/internal/common/errors"
	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/models"
	"resume-matcher/pkg/registry"
)

type MockMatchLister struct {
	mock.Mock
}

func (m *MockMatchLister) ListByApplicant(ctx context.Context, applicantID string, limit int) ([]models.MatchRecord, error) {
	args := m.Called(ctx, applicantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MatchRecord), args.Error(1)
}

func newTestHandler(t *testing.T, lister MatchLister) *Handler {
	reg, err := registry.Default()
	require.NoError(t, err)
	h, err := NewHandler(HandlerOptions{Matches: lister, Registry: reg, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)
	return h
}

func TestHandler_ParseInput(t *testing.T) {
	h := newTestHandler(t, &MockMatchLister{})

	input, err := h.ParseInput(`{"applicant_id":"a1","limit":5}`)
	require.NoError(t, err)
	assert.Equal(t, &Input{ApplicantID: "a1", Limit: 5}, input)

	for _, vars := range []string{`{}`, `{"applicant_id":""}`, `{"applicant_id":"a1","limit":0}`, `not json`} {
		_, err := h.ParseInput(vars)
		assert.True(t, errors.HasCode(err, errors.ErrCodeInputInvalid), vars)
	}
}

func TestHandler_Execute(t *testing.T) {
	records := []models.MatchRecord{
		{ApplicantID: "a1", JobID: "j2", SimilarityScore: 0.9, MatchedAt: 200},
		{ApplicantID: "a1", JobID: "j1", SimilarityScore: 0.8, MatchedAt: 100},
	}

	tests := []struct {
		name           string
		input          *Input
		expectedLimit  int
		returned       []models.MatchRecord
		validateOutput func(t *testing.T, output *Output)
	}{
		{
			name:          "default limit",
			input:         &Input{ApplicantID: "a1"},
			expectedLimit: defaultLimit,
			returned:      records,
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, 2, output.Count)
				assert.Equal(t, "j2", output.Matches[0].JobID)
			},
		},
		{
			name:          "explicit limit",
			input:         &Input{ApplicantID: "a1", Limit: 1},
			expectedLimit: 1,
			returned:      records[:1],
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, 1, output.Count)
			},
		},
		{
			name:          "no matches",
			input:         &Input{ApplicantID: "a9"},
			expectedLimit: defaultLimit,
			returned:      []models.MatchRecord{},
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, 0, output.Count)
				assert.NotNil(t, output.Matches)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &MockMatchLister{}
			lister.On("ListByApplicant", mock.Anything, tt.input.ApplicantID, tt.expectedLimit).Return(tt.returned, nil)

			output, err := newTestHandler(t, lister).Execute(context.Background(), tt.input)
			require.NoError(t, err)
			tt.validateOutput(t, output)
			lister.AssertExpectations(t)
		})
	}
}

func TestHandler_Execute_StoreError(t *testing.T) {
	lister := &MockMatchLister{}
	lister.On("ListByApplicant", mock.Anything, "a1", defaultLimit).Return(nil, assert.AnError)

	_, err := newTestHandler(t, lister).Execute(context.Background(), &Input{ApplicantID: "a1"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStoreError))
	assert.True(t, errors.IsRetryableErrorCode(errors.ErrCodeStoreError))
}
