package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is the envelope for every message on the index job topics.
type Job struct {
	JobID         string            `json:"job_id"`
	JobType       string            `json:"job_type"`
	Model         string            `json:"model"`
	Key           string            `json:"key"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewJob creates a job with a generated ID and the current timestamp. key is
// used as the Kafka message key so jobs for one record stay ordered within a
// partition.
func NewJob(jobType, model, key, source string, data any) (*Job, error) {
	job := &Job{
		JobID:     uuid.New().String(),
		JobType:   jobType,
		Model:     model,
		Key:       key,
		Timestamp: time.Now().UTC(),
		Source:    source,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal job data: %w", err)
		}
		job.Data = raw
	}
	return job, nil
}

// WithCorrelationID sets the correlation ID on the job.
func (j *Job) WithCorrelationID(id string) *Job {
	j.CorrelationID = id
	return j
}

// WithMetadata adds a key-value pair to the job metadata.
func (j *Job) WithMetadata(key, value string) *Job {
	if j.Metadata == nil {
		j.Metadata = make(map[string]string)
	}
	j.Metadata[key] = value
	return j
}

// Marshal serializes the job to JSON bytes.
func (j *Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalJob deserializes a job from JSON bytes.
func UnmarshalJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	if job.JobType == "" {
		return nil, fmt.Errorf("job has no job_type")
	}
	return &job, nil
}

// UnmarshalData deserializes the job payload into the given target.
func (j *Job) UnmarshalData(target any) error {
	if len(j.Data) == 0 {
		return fmt.Errorf("job %s has no data", j.JobID)
	}
	return json.Unmarshal(j.Data, target)
}

// TopicPrefix is the prefix for all searchsync topics.
const TopicPrefix = "searchsync"

// Topic constructs a fully-qualified topic name, e.g. Topic("jobs", "index").
func Topic(kind, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, kind, action)
}
