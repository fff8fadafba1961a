package comm_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nasa-jpl/scopesync/comm"
)

type countingConn struct {
	bytes.Buffer
	mu     sync.Mutex
	closed bool
}

func (c *countingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *countingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type maker struct {
	mu    sync.Mutex
	made  []*countingConn
	fails bool
}

func (m *maker) make() (io.ReadWriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails {
		return nil, errors.New("dial failed")
	}
	c := &countingConn{}
	m.made = append(m.made, c)
	return c, nil
}

func (m *maker) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.made)
}

func TestPoolReusesReturnedConnection(t *testing.T) {
	m := &maker{}
	p := comm.NewPool(1, 0, m.make)
	c, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	p.Put(c)
	c2, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	if c2 != c || m.count() != 1 {
		t.Errorf("expected the connection to be reused, made %d", m.count())
	}
	if p.Active() != 1 {
		t.Errorf("expected one connection on lease, got %d", p.Active())
	}
}

func TestPoolDestroyRedials(t *testing.T) {
	m := &maker{}
	p := comm.NewPool(1, 0, m.make)
	c, _ := p.Get()
	p.Destroy(c)
	if !m.made[0].isClosed() {
		t.Error("a destroyed connection must be closed")
	}
	c2, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	if c2 == c || m.count() != 2 {
		t.Error("expected a fresh connection after Destroy")
	}
	if p.Size() != 1 {
		t.Errorf("expected a pool size of 1, got %d", p.Size())
	}
}

func TestPoolFailedDialFreesSlot(t *testing.T) {
	m := &maker{fails: true}
	p := comm.NewPool(1, 0, m.make)
	if _, err := p.Get(); err == nil {
		t.Fatal("expected the dial error")
	}
	if p.Active() != 0 {
		t.Errorf("a failed dial must not hold a slot, active %d", p.Active())
	}
	m.fails = false
	if _, err := p.Get(); err != nil {
		t.Errorf("expected the retry to succeed, got %v", err)
	}
}

func TestPoolGetBlocksUntilPut(t *testing.T) {
	m := &maker{}
	p := comm.NewPool(1, 0, m.make)
	c, _ := p.Get()
	got := make(chan io.ReadWriteCloser)
	go func() {
		c2, _ := p.Get()
		got <- c2
	}()
	select {
	case <-got:
		t.Fatal("Get must block while the only connection is out")
	case <-time.After(20 * time.Millisecond):
	}
	p.Put(c)
	select {
	case c2 := <-got:
		if c2 != c {
			t.Error("expected the returned connection")
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up after Put")
	}
}

func TestPoolReclaimsIdle(t *testing.T) {
	m := &maker{}
	p := comm.NewPool(1, 10*time.Millisecond, m.make)
	c, _ := p.Get()
	p.Put(c)
	deadline := time.Now().Add(time.Second)
	for !m.made[0].isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("idle connection was never reclaimed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if p.Size() != 0 {
		t.Errorf("expected an empty pool, got %d", p.Size())
	}
}

func TestPoolClose(t *testing.T) {
	m := &maker{}
	p := comm.NewPool(1, 0, m.make)
	c, _ := p.Get()
	p.Put(c)
	p.Close()
	if !m.made[0].isClosed() {
		t.Error("Close must close idle connections")
	}
	if _, err := p.Get(); !errors.Is(err, comm.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after Close, got %v", err)
	}
}
