package worker

import (
	"testing"

	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/queue"
)

func TestDecodeJob(t *testing.T) {
	entry := rueidis.XRangeEntry{
		ID: "1-0",
		FieldValues: map[string]string{
			queue.FieldOutboxID: "outbox-1",
			queue.FieldTenantID: "tenant-1",
			queue.FieldType:     "publish",
			queue.FieldPayload:  `{"content_id":"c1"}`,
			queue.FieldAttempt:  "2",
		},
	}

	job, err := decodeJob(entry)

	require.NoError(t, err)
	assert.Equal(t, "outbox-1", job.OutboxID)
	assert.Equal(t, "tenant-1", job.TenantID)
	assert.Equal(t, model.JobTypePublish, job.Type)
	assert.JSONEq(t, `{"content_id":"c1"}`, string(job.Payload))
	assert.Equal(t, 2, job.Attempt)
}

func TestDecodeJobDefaultsAttempt(t *testing.T) {
	entry := rueidis.XRangeEntry{
		FieldValues: map[string]string{
			queue.FieldOutboxID: "outbox-1",
			queue.FieldType:     "publish",
			queue.FieldPayload:  `{}`,
		},
	}

	job, err := decodeJob(entry)

	require.NoError(t, err)
	assert.Equal(t, 0, job.Attempt)
}

func TestDecodeJobMissingFields(t *testing.T) {
	cases := map[string]map[string]string{
		"no outbox id": {
			queue.FieldType:    "publish",
			queue.FieldPayload: `{}`,
		},
		"no type": {
			queue.FieldOutboxID: "outbox-1",
			queue.FieldPayload:  `{}`,
		},
		"no payload": {
			queue.FieldOutboxID: "outbox-1",
			queue.FieldType:     "publish",
		},
	}

	for name, fields := range cases {
		_, err := decodeJob(rueidis.XRangeEntry{FieldValues: fields})
		assert.Error(t, err, name)
	}
}
