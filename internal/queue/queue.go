// Package queue implements the durable job queue: one FIFO per lexical
// store plus a single global queue for embedding and vector-store writes.
// Jobs are persisted in a bbolt database so indexing survives a process
// restart, and exactly one process may act as the Processor for a given
// queue at a time, enforced with a file lock.
package queue

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hybridsearch/engine/internal/model"
)

const (
	// BaseBackoff and MaxBackoff define the retry schedule: min(base*2^(n-1), max).
	BaseBackoff = 2 * time.Second
	MaxBackoff  = 30 * time.Second

	// MaxCompletedRetained bounds the completed-job history kept per queue.
	MaxCompletedRetained = 100

	// GlobalEmbeddingQueue is the name of the single global embedding/vector
	// write queue, shared across all stores.
	GlobalEmbeddingQueue = "embedding"
)

var (
	bucketJobs      = []byte("jobs")
	bucketPending    = []byte("pending")
	bucketScheduled  = []byte("scheduled")
	bucketCompleted  = []byte("completed")
	bucketFailedLog  = []byte("failed_log")
	bucketSeq        = []byte("seq")
)

// LexicalQueueName returns the per-store lexical-index queue name.
func LexicalQueueName(store string) string {
	return "lexical:" + store
}

// Backoff returns the delay before attempt N (1-indexed) is retried.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= MaxBackoff {
			return MaxBackoff
		}
	}
	return d
}

// Queue wraps a durable bbolt-backed job store. Multiple queues (named by
// string) are multiplexed through nested buckets of a single database file.
type Queue struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt database at path and ensures
// the top-level buckets exist.
func Open(path string) (*Queue, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketJobs, bucketPending, bucketScheduled, bucketCompleted, bucketFailedLog, bucketSeq} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init queue buckets: %w", err)
	}

	return &Queue{db: db}, nil
}

// Close releases the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func scheduledKey(runAt time.Time, id uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], uint64(runAt.UnixNano()))
	binary.BigEndian.PutUint64(b[8:], id)
	return b
}

// Enqueue persists job and appends it to the back of queueName's pending
// FIFO. The job's ID is assigned from the database's global sequence so
// submission order across all queues is preserved.
func (q *Queue) Enqueue(queueName string, job *model.Job) (uint64, error) {
	var id uint64
	err := q.db.Update(func(tx *bbolt.Tx) error {
		seqBucket := tx.Bucket(bucketSeq)
		next, err := seqBucket.NextSequence()
		if err != nil {
			return err
		}
		id = next
		job.ID = id
		job.Queue = queueName
		job.Status = model.JobStatusQueued
		if job.SubmittedAt.IsZero() {
			job.SubmittedAt = time.Now()
		}

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		if err := tx.Bucket(bucketJobs).Put(idKey(id), data); err != nil {
			return err
		}

		pending, err := tx.CreateBucketIfNotExists(append(append([]byte{}, bucketPending...), queueName...))
		if err != nil {
			return err
		}
		return pending.Put(idKey(id), []byte(queueName))
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// pendingBucketName namespaces the pending bucket per queue.
func pendingBucketName(queueName string) []byte {
	return append(append([]byte{}, bucketPending...), queueName...)
}

func scheduledBucketName(queueName string) []byte {
	return append(append([]byte{}, bucketScheduled...), queueName...)
}

func completedBucketName(queueName string) []byte {
	return append(append([]byte{}, bucketCompleted...), queueName...)
}

// promoteReady moves any scheduled retries whose NextRunAt has passed into
// the pending bucket so they become eligible for Dequeue again.
func (q *Queue) promoteReady(tx *bbolt.Tx, queueName string) error {
	scheduled, err := tx.CreateBucketIfNotExists(scheduledBucketName(queueName))
	if err != nil {
		return err
	}
	pending, err := tx.CreateBucketIfNotExists(pendingBucketName(queueName))
	if err != nil {
		return err
	}

	now := uint64(time.Now().UnixNano())
	c := scheduled.Cursor()
	var toDelete [][]byte
	for k, v := c.First(); k != nil; k, v = c.Next() {
		runAtNanos := binary.BigEndian.Uint64(k[:8])
		if runAtNanos > now {
			break // keys are sorted by runAt then id; nothing further is ready
		}
		id := binary.BigEndian.Uint64(k[8:])
		if err := pending.Put(idKey(id), v); err != nil {
			return err
		}
		toDelete = append(toDelete, append([]byte{}, k...))
	}
	for _, k := range toDelete {
		if err := scheduled.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue pops the oldest ready job from queueName's pending FIFO and marks
// it Active. Returns nil, nil if the queue is empty.
func (q *Queue) Dequeue(queueName string) (*model.Job, error) {
	var job *model.Job
	err := q.db.Update(func(tx *bbolt.Tx) error {
		if err := q.promoteReady(tx, queueName); err != nil {
			return err
		}

		pending, err := tx.CreateBucketIfNotExists(pendingBucketName(queueName))
		if err != nil {
			return err
		}

		c := pending.Cursor()
		k, _ := c.First()
		if k == nil {
			return nil
		}
		id := binary.BigEndian.Uint64(k)

		jobData := tx.Bucket(bucketJobs).Get(idKey(id))
		if jobData == nil {
			// orphaned pending entry; drop and report empty this round
			return pending.Delete(k)
		}

		var j model.Job
		if err := json.Unmarshal(jobData, &j); err != nil {
			return fmt.Errorf("unmarshal job %d: %w", id, err)
		}
		j.Status = model.JobStatusActive

		data, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketJobs).Put(idKey(id), data); err != nil {
			return err
		}
		if err := pending.Delete(k); err != nil {
			return err
		}

		job = &j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return job, nil
}

// ReconcileActive re-enqueues any job recorded for queueName that is stuck
// in JobStatusActive: a job reaches that state only inside Dequeue, which
// already removed it from the pending bucket, so a crash between Dequeue
// and Complete/Retry otherwise strands it in bucketJobs forever. Called
// once per queue at startup, before any worker begins draining it.
func (q *Queue) ReconcileActive(queueName string) (int, error) {
	var n int
	err := q.db.Update(func(tx *bbolt.Tx) error {
		pending, err := tx.CreateBucketIfNotExists(pendingBucketName(queueName))
		if err != nil {
			return err
		}

		jobs := tx.Bucket(bucketJobs)
		var stranded []model.Job
		c := jobs.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j model.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return fmt.Errorf("unmarshal job during reconcile: %w", err)
			}
			if j.Queue == queueName && j.Status == model.JobStatusActive {
				stranded = append(stranded, j)
			}
		}

		for _, j := range stranded {
			j.Status = model.JobStatusQueued
			data, err := json.Marshal(&j)
			if err != nil {
				return err
			}
			if err := jobs.Put(idKey(j.ID), data); err != nil {
				return err
			}
			if err := pending.Put(idKey(j.ID), []byte(queueName)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile active jobs for %s: %w", queueName, err)
	}
	return n, nil
}

// Complete marks job as completed and retains it in a bounded completed-job
// ring (oldest evicted past MaxCompletedRetained).
func (q *Queue) Complete(queueName string, job *model.Job) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		job.Status = model.JobStatusCompleted
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}

		completed, err := tx.CreateBucketIfNotExists(completedBucketName(queueName))
		if err != nil {
			return err
		}
		if err := completed.Put(idKey(job.ID), data); err != nil {
			return err
		}

		if err := tx.Bucket(bucketJobs).Delete(idKey(job.ID)); err != nil {
			return err
		}

		return trimCompleted(completed, MaxCompletedRetained)
	})
}

func trimCompleted(b *bbolt.Bucket, max int) error {
	n := b.Stats().KeyN
	if n <= max {
		return nil
	}
	c := b.Cursor()
	toRemove := n - max
	var keys [][]byte
	for k, _ := c.First(); k != nil && toRemove > 0; k, _ = c.Next() {
		keys = append(keys, append([]byte{}, k...))
		toRemove--
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Retry records a failed attempt, bumps Attempt, and re-enqueues job onto
// queueName's scheduled set with the standard backoff. The failure is
// appended to an unbounded failure log for that queue.
func (q *Queue) Retry(queueName string, job *model.Job, cause error) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		job.Attempt++
		job.Status = model.JobStatusRetrying
		if cause != nil {
			job.LastError = cause.Error()
		}
		delay := Backoff(job.Attempt)
		job.NextRunAt = time.Now().Add(delay)

		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketJobs).Put(idKey(job.ID), data); err != nil {
			return err
		}

		scheduled, err := tx.CreateBucketIfNotExists(scheduledBucketName(queueName))
		if err != nil {
			return err
		}
		if err := scheduled.Put(scheduledKey(job.NextRunAt, job.ID), []byte(queueName)); err != nil {
			return err
		}

		failedLog, err := tx.CreateBucketIfNotExists(append(append([]byte{}, bucketFailedLog...), queueName...))
		if err != nil {
			return err
		}
		seq, _ := failedLog.NextSequence()
		return failedLog.Put(idKey(seq), data)
	})
}

// Get returns the current persisted state of a job by ID.
func (q *Queue) Get(id uint64) (*model.Job, error) {
	var job *model.Job
	err := q.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get(idKey(id))
		if data == nil {
			return nil
		}
		var j model.Job
		if err := json.Unmarshal(data, &j); err != nil {
			return err
		}
		job = &j
		return nil
	})
	return job, err
}

// PendingCount returns the number of jobs currently waiting (pending +
// scheduled) in queueName.
func (q *Queue) PendingCount(queueName string) (int, error) {
	var n int
	err := q.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(pendingBucketName(queueName)); b != nil {
			n += b.Stats().KeyN
		}
		if b := tx.Bucket(scheduledBucketName(queueName)); b != nil {
			n += b.Stats().KeyN
		}
		return nil
	})
	return n, err
}
