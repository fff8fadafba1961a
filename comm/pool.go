package comm

import (
	"io"
	"sync"
	"time"
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool is a communication pool which holds one or more connections to a device
// that will be closed if they are not in use, and re-opened as needed.
// it is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	maxSize int                  // maximum number of connections
	onLease int                  // number of connections given out, <= maxSize
	timeout time.Duration        // idle time after which returned connections are closed; 0 never
	idle    []io.ReadWriteCloser // connections ready to be given out
	timer   *time.Timer          // pending reclaim, if any
	maker   CreationFunc
	closed  bool
}

// NewPool returns a pool of at most maxSize connections made by maker.
// When every connection has been returned and timeout elapses with none
// taken out again, they are closed.  A zero timeout keeps them open.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	p := &Pool{maxSize: maxSize, timeout: timeout, maker: maker}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Get retrieves a connection, blocking until one is available if all are in
// use.  A new connection is made when none are idle and fewer than maxSize
// are out.
//
// When done with the connection, return it with Put(), or discard it with
// Destroy() if it has become no good (e.g., a reply was lost).
//
// If the error from Get is not nil, you must not return it to the pool.
func (p *Pool) Get() (io.ReadWriteCloser, error) {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, ErrNotConnected
		}
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.onLease++
			p.mu.Unlock()
			return c, nil
		}
		if p.onLease < p.maxSize {
			break
		}
		p.cond.Wait()
	}
	// reserve the slot, then dial without holding the lock
	p.onLease++
	p.mu.Unlock()
	c, err := p.maker()
	if err != nil {
		p.mu.Lock()
		p.onLease--
		p.cond.Signal()
		p.mu.Unlock()
		return nil, err
	}
	return c, nil
}

// Put restores a connection to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timeout
// has elapsed.
func (p *Pool) Put(c io.ReadWriteCloser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLease--
	if p.closed {
		c.Close()
		return
	}
	p.idle = append(p.idle, c)
	p.cond.Signal()
	if p.onLease == 0 && p.timeout > 0 {
		p.timer = time.AfterFunc(p.timeout, p.reclaim)
	}
}

// Destroy immediately closes a connection and frees its slot.  This should
// be used instead of Put if the connection has gone bad.
func (p *Pool) Destroy(c io.ReadWriteCloser) {
	c.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLease--
	p.cond.Signal()
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle) + p.onLease
}

// Active returns the number of connections owned by the pool that are currently
// given out
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// Close closes every idle connection; connections on lease are closed when
// they are returned.  Get fails with ErrNotConnected afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.closeIdle()
	p.cond.Broadcast()
	return nil
}

func (p *Pool) reclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onLease == 0 {
		p.closeIdle()
	}
}

func (p *Pool) closeIdle() {
	for _, c := range p.idle {
		c.Close()
	}
	p.idle = nil
}
