package workers

import (
	"errors"
	"sync"

	"github.com/treestandk/wingman/internal/logger"
)

// ErrQueueClosed is returned when trying to enqueue to a closed queue
var ErrQueueClosed = errors.New("queue is closed")

// Job is one deployment run handed to the worker pool. Run carries its own
// context; a job accepted before shutdown finishes its stages. OnPanic,
// when set, is invoked after a recovered panic so the deployment record
// can be failed instead of staying in_progress forever.
type Job struct {
	DeploymentID string
	Run          func()
	OnPanic      func(recovered interface{})
}

// Queue manages the deployment job queue with a channel-based system
type Queue struct {
	jobs chan *Job
	done chan bool
	mu   sync.Mutex
}

// NewQueue creates a new job queue with the specified buffer size
func NewQueue(bufferSize int) *Queue {
	return &Queue{
		jobs: make(chan *Job, bufferSize),
		done: make(chan bool),
	}
}

// Enqueue adds a job to the queue
func (q *Queue) Enqueue(job *Job) error {
	logger.WithField("deployment_id", job.DeploymentID).Debug("Enqueueing deployment job")

	select {
	case q.jobs <- job:
		logger.WithField("deployment_id", job.DeploymentID).Info("Deployment job enqueued")
		return nil
	case <-q.done:
		logger.WithField("deployment_id", job.DeploymentID).Warn("Failed to enqueue job: queue is closed")
		return ErrQueueClosed
	}
}

// Jobs returns the underlying channel for job consumption
func (q *Queue) Jobs() <-chan *Job {
	return q.jobs
}

// Close closes the queue
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.done:
		return // Already closed
	default:
		close(q.done)
		close(q.jobs)
	}
}

// Pool manages multiple workers processing deployment jobs
type Pool struct {
	queue   *Queue
	workers int
	jobs    chan *Job
	wg      sync.WaitGroup
	done    chan bool
}

// NewPool creates a new worker pool
func NewPool(queue *Queue, numWorkers int) *Pool {
	return &Pool{
		queue:   queue,
		workers: numWorkers,
		jobs:    queue.jobs,
		done:    make(chan bool),
	}
}

// Start starts all workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker processes jobs from the queue
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				logger.Debug("Worker exiting: jobs channel closed")
				return
			}
			if job != nil {
				logger.WithField("deployment_id", job.DeploymentID).Info("Worker processing deployment")
				p.runJob(job)
			}
		case <-p.done:
			logger.Debug("Worker exiting: stop signal received")
			return
		}
	}
}

// runJob executes one job, recovering panics so a single bad deployment
// cannot take the worker down.
func (p *Pool) runJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{
				"deployment_id": job.DeploymentID,
				"panic":         r,
			}).Error("Deployment worker panicked")
			if job.OnPanic != nil {
				job.OnPanic(r)
			}
		}
	}()

	job.Run()
	logger.WithField("deployment_id", job.DeploymentID).Info("Worker completed deployment")
}

// Stop stops all workers
func (p *Pool) Stop() {
	close(p.done)
	p.wg.Wait()
}

// Wait waits for all workers to finish
func (p *Pool) Wait() {
	p.wg.Wait()
}
