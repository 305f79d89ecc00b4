// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"sort"

	"github.com/musergi/ospreid/internal/store"
)

// topoOrder returns stages ordered parent-before-child, ties broken by
// ascending stage ID. The checkout stage (the only one with a nil
// Dependency) is always first. Stages form a tree, not a general DAG, so a
// single forward pass that repeatedly admits any not-yet-emitted stage
// whose dependency has already been emitted is sufficient; no heap or
// explicit queue is needed.
func topoOrder(stages []store.Stage) []store.Stage {
	byID := make(map[int64]store.Stage, len(stages))
	for _, s := range stages {
		byID[s.ID] = s
	}

	emitted := make(map[int64]bool, len(stages))
	ordered := make([]store.Stage, 0, len(stages))

	for len(ordered) < len(stages) {
		progressed := false
		ids := sortedIDs(stages, emitted)
		for _, id := range ids {
			s := byID[id]
			if s.Dependency == nil || emitted[*s.Dependency] {
				ordered = append(ordered, s)
				emitted[id] = true
				progressed = true
			}
		}
		if !progressed {
			// A dependency pointing outside this stage's own job would
			// stall the pass; store.CreateStage rejects that case, so this
			// only guards against it structurally.
			break
		}
	}
	return ordered
}

func sortedIDs(stages []store.Stage, emitted map[int64]bool) []int64 {
	ids := make([]int64, 0, len(stages))
	for _, s := range stages {
		if !emitted[s.ID] {
			ids = append(ids, s.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
