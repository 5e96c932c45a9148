package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name  string
		query SearchQuery
		field string
	}{
		{"valid", SearchQuery{Term: "brain", Email: "a@b.com"}, ""},
		{"valid with cap", SearchQuery{Term: "brain", Email: "first.last@uni.example.org", MaxResults: 10}, ""},
		{"empty term", SearchQuery{Email: "a@b.com"}, "search_term"},
		{"blank term", SearchQuery{Term: " \t", Email: "a@b.com"}, "search_term"},
		{"empty email", SearchQuery{Term: "brain"}, "email"},
		{"no at", SearchQuery{Term: "brain", Email: "ab.com"}, "email"},
		{"no domain suffix", SearchQuery{Term: "brain", Email: "a@localhost"}, "email"},
		{"negative cap", SearchQuery{Term: "brain", Email: "a@b.com", MaxResults: -1}, "max_results"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			if assert.True(t, errors.As(err, &verr)) {
				assert.Equal(t, tt.field, verr.Field)
			}
		})
	}
}

func TestSearchQuery_Normalize(t *testing.T) {
	q := SearchQuery{Term: "  brain ", Email: " a@b.com\n", MaxResults: 3}.Normalize()
	assert.Equal(t, SearchQuery{Term: "brain", Email: "a@b.com", MaxResults: 3}, q)
}

func TestJob_StatusLabel(t *testing.T) {
	tests := []struct {
		job  Job
		want string
	}{
		{Job{Status: StatusPending}, "Pending"},
		{Job{Status: StatusRunning, Phase: PhaseSearching}, "Searching..."},
		{Job{Status: StatusRunning, Phase: PhaseFetching}, "Downloading..."},
		{Job{Status: StatusRunning, Phase: PhaseExporting}, "Creating archives..."},
		{Job{Status: StatusCompleted}, "Completed"},
		{Job{Status: StatusFailed, Error: "search failed"}, "Error: search failed"},
		{Job{Status: StatusFailed}, "Error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.job.StatusLabel())
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
