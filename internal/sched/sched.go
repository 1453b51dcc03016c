// Package sched is the bounded, prioritized work queue that keeps terrain
// generation and mesh extraction off the coordinator thread. Results come
// back on a channel and are only ever applied by the coordinator, which is
// what keeps chunk state free of locks.
package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelmesh/internal/logging"
	"voxelmesh/internal/world"
)

// Kind distinguishes the two job families.
type Kind int

const (
	KindTerrain Kind = iota
	KindMesh
)

func (k Kind) String() string {
	if k == KindTerrain {
		return "terrain"
	}
	return "mesh"
}

// Key identifies a job slot. At most one job per key is queued or in
// flight at any time; duplicate submissions are no-ops.
type Key struct {
	Coord world.ChunkCoord
	Kind  Kind
}

// Job is one unit of work. Priority is fixed at enqueue time (higher runs
// sooner); the queue is not re-sorted as the viewer moves.
type Job struct {
	Key      Key
	Priority int
	Enqueued time.Time
	Run      func() Result
}

// Result is the immutable completion payload handed back to the
// coordinator. Exactly one of the payload groups is set, per Kind.
type Result struct {
	Key     Key
	Field   world.VoxelField
	Verts   []mgl32.Vec3
	Normals []mgl32.Vec3
	Err     error
}

// Stats is a read-only snapshot for introspection.
type Stats struct {
	Depth     int    `json:"depth"`
	Active    int    `json:"active"`
	Evicted   uint64 `json:"evicted"`
	Rejected  uint64 `json:"rejected"`
	Completed uint64 `json:"completed"`
}

// Pool is a fixed worker pool over a bounded priority queue. When the queue
// is full, the lowest-priority pending job is evicted in favor of a
// higher-or-equal-priority submission; starving distant chunks is the
// accepted tradeoff.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Job
	queued map[Key]struct{}
	active map[Key]struct{}

	capacity  int
	closed    bool
	evicted   uint64
	rejected  uint64
	completed uint64

	results chan Result
	done    chan struct{}
	wg      sync.WaitGroup
	log     logging.Logger
}

// NewPool starts workers goroutines over a queue of the given capacity.
// Zero workers is allowed (useful in tests; jobs then only run via forced
// synchronous fallback on the caller's side).
func NewPool(workers, capacity int, log logging.Logger) *Pool {
	p := &Pool{
		queue:    make([]Job, 0, capacity),
		queued:   make(map[Key]struct{}),
		active:   make(map[Key]struct{}),
		capacity: capacity,
		results:  make(chan Result, capacity+workers),
		done:     make(chan struct{}),
		log:      log,
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit offers a job. Returns false when the job was a duplicate, the
// queue was full of strictly higher-priority work, or the pool is closed.
func (p *Pool) Submit(j Job) bool {
	if j.Enqueued.IsZero() {
		j.Enqueued = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, ok := p.queued[j.Key]; ok {
		return false
	}
	if _, ok := p.active[j.Key]; ok {
		return false
	}

	if len(p.queue) >= p.capacity {
		low := p.lowestLocked()
		if p.queue[low].Priority > j.Priority {
			p.rejected++
			return false
		}
		evictedKey := p.queue[low].Key
		p.queue = append(p.queue[:low], p.queue[low+1:]...)
		delete(p.queued, evictedKey)
		p.evicted++
		p.log.Debug("sched", "evicted %s job for chunk %v", evictedKey.Kind, evictedKey.Coord)
	}

	p.queue = append(p.queue, j)
	p.queued[j.Key] = struct{}{}
	p.cond.Signal()
	return true
}

// Cancel removes a pending job from the queue. Returns false when the job
// is already running or not queued; a running job cannot be cancelled, only
// discarded at apply time.
func (p *Pool) Cancel(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queued[key]; !ok {
		return false
	}
	for i := range p.queue {
		if p.queue[i].Key == key {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	delete(p.queued, key)
	return true
}

// lowestLocked returns the index of the lowest-priority pending job,
// breaking ties toward the oldest entry.
func (p *Pool) lowestLocked() int {
	low := 0
	for i := 1; i < len(p.queue); i++ {
		if p.queue[i].Priority < p.queue[low].Priority ||
			(p.queue[i].Priority == p.queue[low].Priority &&
				p.queue[i].Enqueued.Before(p.queue[low].Enqueued)) {
			low = i
		}
	}
	return low
}

// bestLocked returns the index of the highest-priority pending job,
// breaking ties toward the oldest entry.
func (p *Pool) bestLocked() int {
	best := 0
	for i := 1; i < len(p.queue); i++ {
		if p.queue[i].Priority > p.queue[best].Priority ||
			(p.queue[i].Priority == p.queue[best].Priority &&
				p.queue[i].Enqueued.Before(p.queue[best].Enqueued)) {
			best = i
		}
	}
	return best
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		best := p.bestLocked()
		job := p.queue[best]
		p.queue = append(p.queue[:best], p.queue[best+1:]...)
		delete(p.queued, job.Key)
		p.active[job.Key] = struct{}{}
		p.mu.Unlock()

		res := p.runSafe(job)

		p.mu.Lock()
		delete(p.active, job.Key)
		p.completed++
		p.mu.Unlock()

		select {
		case p.results <- res:
		case <-p.done:
			return
		}
	}
}

// runSafe isolates a panicking job so it cannot take down the worker pool.
func (p *Pool) runSafe(j Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("sched", "%s job for chunk %v panicked: %v", j.Key.Kind, j.Key.Coord, r)
			res = Result{Key: j.Key, Err: fmt.Errorf("job panicked: %v", r)}
		}
	}()
	return j.Run()
}

// Results is the completion channel, drained by the coordinator.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Stats returns a snapshot of queue counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Depth:     len(p.queue),
		Active:    len(p.active),
		Evicted:   p.evicted,
		Rejected:  p.rejected,
		Completed: p.completed,
	}
}

// Close stops the workers. Pending jobs are dropped; in-flight results may
// be lost, which is fine because apply-time existence checks make every
// result discardable.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	close(p.done)
	p.wg.Wait()
}
