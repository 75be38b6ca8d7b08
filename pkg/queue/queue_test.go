package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	payload := EmailPayload{
		EmailType:      "payment_receipt",
		EventID:        uuid.New(),
		RegistrationID: uuid.New(),
		RecipientEmail: "member@example.com",
		Subject:        "Payment received",
		BodyHTML:       "<p>Thanks!</p>",
	}
	require.NoError(t, q.EnqueueEmail(ctx, payload))

	job, key, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, QueueEmails, key)
	assert.Equal(t, JobTypeEmail, job.Type)
	assert.Zero(t, job.Attempt)

	var got EmailPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	assert.Equal(t, payload, got)
}

func TestRetryMovesToDLQAfterMaxAttempts(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueEmail(ctx, EmailPayload{EmailType: "reminder", RecipientEmail: "x@example.com"}))

	for attempt := 0; attempt < MaxRetries; attempt++ {
		job, _, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, attempt, job.Attempt)
		require.NoError(t, q.Retry(ctx, job))
		if attempt < MaxRetries-1 {
			assert.Equal(t, 1, mustLen(t, mr, QueueEmails))
		}
	}

	assert.Zero(t, mustLen(t, mr, QueueEmails))
	assert.Equal(t, 1, mustLen(t, mr, QueueDLQ))
}

func mustLen(t *testing.T, mr *miniredis.Miniredis, key string) int {
	t.Helper()
	if !mr.Exists(key) {
		return 0
	}
	list, err := mr.List(key)
	require.NoError(t, err)
	return len(list)
}
