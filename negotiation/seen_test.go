// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"fmt"
	"testing"
)

func (s *seenSet) contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func TestSeenSetEvictsOldest(t *testing.T) {
	seen := newSeenSet(3)
	for index := range 3 {
		if !seen.Add(fmt.Sprintf("m%d", index)) {
			t.Fatalf("m%d reported as seen on first add", index)
		}
	}
	if seen.Add("m1") {
		t.Fatal("m1 accepted twice")
	}

	// m3 evicts m0, the oldest.
	seen.Add("m3")
	if seen.contains("m0") {
		t.Fatal("m0 survived eviction")
	}
	for _, id := range []string{"m1", "m2", "m3"} {
		if !seen.contains(id) {
			t.Fatalf("%s evicted too early", id)
		}
	}
	if len(seen.index) != 3 || len(seen.ring) != 3 {
		t.Fatalf("set holds %d ids in a ring of %d, want 3", len(seen.index), len(seen.ring))
	}

	// An evicted id is new again.
	if !seen.Add("m0") {
		t.Fatal("evicted m0 still reported as seen")
	}
	if seen.contains("m1") {
		t.Fatal("m1 should have been evicted by m0")
	}
}
