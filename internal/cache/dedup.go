// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

// Package cache provides the bounded message-id set used to drop redelivered
// platform notifications.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Defaults sized for one EventSub session.
const (
	DefaultCapacity = 4096
	DefaultTTL      = 10 * time.Minute
)

type dedupEntry struct {
	key       string
	expiresAt time.Time
}

// Dedup is a thread-safe LRU set of recently seen ids with per-entry TTL.
// When full, the least recently seen id is evicted.
type Dedup struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clock    clockwork.Clock

	order *list.List // front is most recent
	items map[string]*list.Element

	hits   int64
	misses int64
}

// NewDedup creates a set. Zero values select the defaults; a nil clock uses
// the real clock.
func NewDedup(capacity int, ttl time.Duration, clock clockwork.Clock) *Dedup {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dedup{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Seen reports whether id was recorded within the TTL. If it was not, id is
// recorded and false is returned, so the first caller for an id wins.
func (d *Dedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if el, ok := d.items[id]; ok {
		entry := el.Value.(*dedupEntry)
		if now.Before(entry.expiresAt) {
			d.order.MoveToFront(el)
			d.hits++
			return true
		}
		d.order.Remove(el)
		delete(d.items, id)
	}

	d.items[id] = d.order.PushFront(&dedupEntry{key: id, expiresAt: now.Add(d.ttl)})
	for d.order.Len() > d.capacity {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.items, oldest.Value.(*dedupEntry).key)
	}
	d.misses++
	return false
}

// Forget removes id from the set.
func (d *Dedup) Forget(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.items[id]
	if !ok {
		return false
	}
	d.order.Remove(el)
	delete(d.items, id)
	return true
}

// Len returns the number of tracked ids, expired ones included.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

// Stats returns duplicate hits, first-seen misses and current size.
func (d *Dedup) Stats() (hits, misses int64, size int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits, d.misses, d.order.Len()
}
