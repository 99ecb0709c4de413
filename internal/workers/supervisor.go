package workers

// Supervisor bundles the queue and pool behind the lifecycle the server
// wires: launch deployment jobs while running, then Close to refuse new
// work and Wait for in-flight deployments to finish their stages.
type Supervisor struct {
	queue *Queue
	pool  *Pool
}

func NewSupervisor(bufferSize, numWorkers int) *Supervisor {
	q := NewQueue(bufferSize)
	p := NewPool(q, numWorkers)
	p.Start()
	return &Supervisor{queue: q, pool: p}
}

// Launch hands a deployment job to the pool. Returns ErrQueueClosed once
// Close has been called.
func (s *Supervisor) Launch(job *Job) error {
	return s.queue.Enqueue(job)
}

// Close stops accepting jobs. Workers drain what was already queued.
func (s *Supervisor) Close() {
	s.queue.Close()
}

// Wait blocks until every worker has exited.
func (s *Supervisor) Wait() {
	s.pool.Wait()
}
