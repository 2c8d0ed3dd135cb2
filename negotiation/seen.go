// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

// seenSet remembers the most recent message ids, evicting the oldest
// once full.
type seenSet struct {
	ring  []string
	next  int
	index map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		ring:  make([]string, 0, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

// Add records id and reports whether it was new.
func (s *seenSet) Add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	if len(s.ring) < cap(s.ring) {
		s.ring = append(s.ring, id)
	} else {
		delete(s.index, s.ring[s.next])
		s.ring[s.next] = id
		s.next = (s.next + 1) % len(s.ring)
	}
	s.index[id] = struct{}{}
	return true
}
