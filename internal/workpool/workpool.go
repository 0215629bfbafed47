// Package workpool runs funcs on a fixed set of goroutines fed by a bounded
// queue. Submission never blocks: when the queue is full the func is dropped
// and TryGo reports false.
package workpool

import "sync"

type Pool struct {
	q    chan func()
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex
	done bool
}

// New starts workers goroutines draining a queue of qlen funcs.
// workers <= 0 => 1, qlen <= 0 => 1024.
func New(workers, qlen int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	p := &Pool{q: make(chan func(), qlen)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for f := range p.q {
				f()
			}
		}()
	}
	return p
}

// TryGo enqueues f. It returns false if the queue is full or the pool is closed.
func (p *Pool) TryGo(f func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return false
	}
	select {
	case p.q <- f:
		return true
	default:
		return false
	}
}

// Close stops accepting work, drains the queue and waits for the workers.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.done = true
		close(p.q)
		p.mu.Unlock()
		p.wg.Wait()
	})
}
