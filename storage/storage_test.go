package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubmed-loader/models"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestArtifactArchive_Put(t *testing.T) {
	putter := &fakePutter{}
	archive := &ArtifactArchive{Client: putter, Bucket: "papers", Prefix: "loader", BaseURL: "https://s3.example.com/"}

	link, err := archive.Put(context.Background(), "job-1", "articles.zip", []byte("PK"))
	require.NoError(t, err)

	assert.Equal(t, "https://s3.example.com/papers/loader/job-1/articles.zip", link)
	assert.Equal(t, "papers", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "loader/job-1/articles.zip", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/zip", aws.ToString(putter.input.ContentType))
	assert.Equal(t, []byte("PK"), putter.body)
}

func TestArtifactArchive_PutError(t *testing.T) {
	archive := &ArtifactArchive{Client: &fakePutter{err: errors.New("denied")}, Bucket: "papers"}

	_, err := archive.Put(context.Background(), "job-1", "articles.json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://papers/job-1/articles.json")
}

func TestRecordFromJob(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	job := models.Job{
		ID:         "job-1",
		Status:     models.StatusCompleted,
		Progress:   10,
		Total:      10,
		Skipped:    1,
		Query:      models.SearchQuery{Term: "brain", Email: "a@b.com", MaxResults: 10},
		Result:     &models.ResultSet{Articles: 9},
		StartedAt:  &started,
		FinishedAt: &finished,
	}

	rec := RecordFromJob(job)
	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, "brain", rec.Term)
	assert.Equal(t, 10, rec.MaxResults)
	assert.Equal(t, "Completed", rec.Status)
	assert.Equal(t, 9, rec.Articles)
	assert.Equal(t, 1, rec.Skipped)
	assert.Equal(t, &finished, rec.FinishedAt)

	failed := RecordFromJob(models.Job{ID: "job-2", Status: models.StatusFailed, Error: "search failed"})
	assert.Equal(t, 0, failed.Articles)
	assert.Equal(t, "search failed", failed.Error)
}
