package registry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"simdash/internal/config"
)

// Catalog holds the current Registry. Readers never block; Replace swaps the
// snapshot and notifies subscribers.
type Catalog struct {
	cur atomic.Pointer[Registry]

	mu        sync.Mutex
	subs      map[int]chan *Registry
	nextSubID int
}

// NewCatalog returns a Catalog serving reg.
func NewCatalog(reg *Registry) *Catalog {
	c := &Catalog{subs: make(map[int]chan *Registry)}
	c.cur.Store(reg)
	return c
}

// Current returns the live snapshot.
func (c *Catalog) Current() *Registry { return c.cur.Load() }

// Replace installs reg and notifies subscribers. Slow subscribers miss
// intermediate snapshots but always see the latest one.
func (c *Catalog) Replace(reg *Registry) {
	c.cur.Store(reg)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- reg:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- reg
		}
	}
}

// Subscribe returns a channel receiving each new snapshot and an unsubscribe function.
func (c *Catalog) Subscribe() (<-chan *Registry, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan *Registry, 1)
	c.subs[id] = ch
	unsub := func() {
		c.mu.Lock()
		if ch, ok := c.subs[id]; ok {
			close(ch)
			delete(c.subs, id)
		}
		c.mu.Unlock()
	}
	return ch, unsub
}

// Rescan scans the output root again and installs the result.
func (c *Catalog) Rescan(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Registry, error) {
	reg, err := Scan(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c.Replace(reg)
	return reg, nil
}
