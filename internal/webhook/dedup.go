// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Deduper remembers recent delivery fingerprints so re-sent webhooks are
// detected. Providers deliver at least once; the same event can arrive
// twice within seconds. Memory is bounded two ways: entries expire after
// the TTL, and the least recently seen fingerprint is evicted once the
// capacity is reached.
//
// The structure is a doubly-linked list for recency order plus a map for
// O(1) lookup; head.next is the most recently seen fingerprint.
type Deduper struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration

	items map[string]*dedupEntry
	head  *dedupEntry
	tail  *dedupEntry

	now func() time.Time
}

type dedupEntry struct {
	key       string
	prev      *dedupEntry
	next      *dedupEntry
	expiresAt time.Time
}

// NewDeduper creates a Deduper with the given capacity and TTL.
func NewDeduper(capacity int, ttl time.Duration) *Deduper {
	if capacity <= 0 {
		capacity = 4096
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	d := &Deduper{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*dedupEntry, capacity),
		head:     &dedupEntry{},
		tail:     &dedupEntry{},
		now:      time.Now,
	}
	d.head.next = d.tail
	d.tail.prev = d.head
	return d
}

// Fingerprint derives the dedup key for a delivery from the fields that
// identify one provider event.
func Fingerprint(accountID, eventType, externalID string, timestamp float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%.3f", accountID, eventType, externalID, timestamp)))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether the fingerprint was seen within the TTL. A
// previously unseen fingerprint is recorded and false is returned.
func (d *Deduper) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	if entry, exists := d.items[key]; exists {
		if now.Before(entry.expiresAt) {
			d.moveToFront(entry)
			return true
		}
		d.removeEntry(entry)
	}

	entry := &dedupEntry{
		key:       key,
		expiresAt: now.Add(d.ttl),
	}
	d.addToFront(entry)
	d.items[key] = entry

	for len(d.items) > d.capacity {
		d.removeEntry(d.tail.prev)
	}

	return false
}

// Len returns the current number of remembered fingerprints.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *Deduper) addToFront(entry *dedupEntry) {
	entry.prev = d.head
	entry.next = d.head.next
	d.head.next.prev = entry
	d.head.next = entry
}

func (d *Deduper) moveToFront(entry *dedupEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	d.addToFront(entry)
}

func (d *Deduper) removeEntry(entry *dedupEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(d.items, entry.key)
}
