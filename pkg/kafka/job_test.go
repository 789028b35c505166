package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob_Fields(t *testing.T) {
	type payload struct {
		ID string `json:"id"`
	}

	job, err := NewJob("index.upsert", "Book", "42", "searchsync", payload{ID: "42"})
	require.NoError(t, err)

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, "index.upsert", job.JobType)
	assert.Equal(t, "Book", job.Model)
	assert.Equal(t, "42", job.Key)
	assert.WithinDuration(t, time.Now().UTC(), job.Timestamp, 2*time.Second)

	var got payload
	require.NoError(t, job.UnmarshalData(&got))
	assert.Equal(t, "42", got.ID)
}

func TestNewJob_NilDataAndInvalidData(t *testing.T) {
	job, err := NewJob("index.remove", "Book", "42", "searchsync", nil)
	require.NoError(t, err)
	assert.Empty(t, job.Data)
	assert.Error(t, job.UnmarshalData(&struct{}{}))

	_, err = NewJob("index.upsert", "Book", "1", "searchsync", make(chan int))
	assert.Error(t, err)
}

func TestJob_MarshalRoundTrip(t *testing.T) {
	job, err := NewJob("index.import", "Book", "Book", "searchsync", map[string]int{"batch_size": 500})
	require.NoError(t, err)
	job.WithCorrelationID("corr-1").WithMetadata("collection", "books_1700000000")

	raw, err := job.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalJob(raw)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, decoded.JobID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, "books_1700000000", decoded.Metadata["collection"])
}

func TestUnmarshalJob_Rejects(t *testing.T) {
	_, err := UnmarshalJob([]byte(`not json`))
	assert.Error(t, err)

	_, err = UnmarshalJob([]byte(`{"job_id":"x"}`))
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "searchsync.jobs.index", Topic("jobs", "index"))
	assert.Equal(t, "searchsync.dlq.searchsync.jobs.index", DLQTopic(Topic("jobs", "index")))
}
