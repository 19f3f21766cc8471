package queue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridsearch/engine/internal/model"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestBackoffSchedule(t *testing.T) {
	assert.Equal(t, BaseBackoff, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 8*time.Second, Backoff(3))
	assert.Equal(t, 16*time.Second, Backoff(4))
	assert.Equal(t, MaxBackoff, Backoff(5))
	assert.Equal(t, MaxBackoff, Backoff(10))
	assert.Equal(t, BaseBackoff, Backoff(0)) // clamps attempt to 1
}

func TestEnqueueDequeueOrdering(t *testing.T) {
	q := openTestQueue(t)

	id1, err := q.Enqueue("lexical:s", &model.Job{Kind: model.JobIndex, Store: "s"})
	require.NoError(t, err)
	id2, err := q.Enqueue("lexical:s", &model.Job{Kind: model.JobIndex, Store: "s"})
	require.NoError(t, err)
	assert.Less(t, id1, id2)

	j1, err := q.Dequeue("lexical:s")
	require.NoError(t, err)
	require.NotNil(t, j1)
	assert.Equal(t, id1, j1.ID)
	assert.Equal(t, model.JobStatusActive, j1.Status)

	j2, err := q.Dequeue("lexical:s")
	require.NoError(t, err)
	require.NotNil(t, j2)
	assert.Equal(t, id2, j2.ID)
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	q := openTestQueue(t)
	job, err := q.Dequeue("lexical:empty")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestCompleteRemovesFromJobsBucket(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(GlobalEmbeddingQueue, &model.Job{Kind: model.JobIndex})
	require.NoError(t, err)

	job, err := q.Dequeue(GlobalEmbeddingQueue)
	require.NoError(t, err)
	require.NoError(t, q.Complete(GlobalEmbeddingQueue, job))

	got, err := q.Get(id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRetrySchedulesForLater(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Enqueue("lexical:s", &model.Job{Kind: model.JobIndex, Store: "s"})
	require.NoError(t, err)

	job, err := q.Dequeue("lexical:s")
	require.NoError(t, err)

	require.NoError(t, q.Retry("lexical:s", job, assertErr("upstream unavailable")))
	assert.Equal(t, 1, job.Attempt)

	// not yet due: immediate dequeue should see nothing
	again, err := q.Dequeue("lexical:s")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestRetriedJobStaysPendingDuringBackoff(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Enqueue("lexical:s", &model.Job{Kind: model.JobIndex, Store: "s"})
	require.NoError(t, err)

	job, err := q.Dequeue("lexical:s")
	require.NoError(t, err)

	// A retried job waits out its backoff in the scheduled set, which
	// PendingCount includes, so it is still counted as waiting.
	require.NoError(t, q.Retry("lexical:s", job, assertErr("boom")))

	n, err := q.PendingCount("lexical:s")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNoJobLossAcrossRetries(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Enqueue("lexical:s", &model.Job{Kind: model.JobIndex, Store: "s"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		job, err := q.Dequeue("lexical:s")
		require.NoError(t, err)
		if job == nil {
			break
		}
		require.NoError(t, q.Retry("lexical:s", job, assertErr("still failing")))
	}

	n, err := q.PendingCount("lexical:s")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "job must still exist somewhere in the queue, never dropped")
}

func TestPerStoreQueuesAreIndependent(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Enqueue(LexicalQueueName("a"), &model.Job{Store: "a"})
	require.NoError(t, err)

	job, err := q.Dequeue(LexicalQueueName("b"))
	require.NoError(t, err)
	assert.Nil(t, job, "store b's queue must not see store a's jobs")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
