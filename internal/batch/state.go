package batch

import (
	"sort"

	"summons-lookup/internal/record"
)

// State is the progress of a run, results are ordered by position.
type State struct {
	Results []record.Result
	// position of the first identifier without a result
	Cursor int
}

// Done reports whether every one of n identifiers has a result.
func (s State) Done(n int) bool {
	return s.Cursor >= n
}

func (s *State) add(r record.Result) {
	s.Results = append(s.Results, r)
	s.normalize()
}

func (s *State) normalize() {
	sort.SliceStable(s.Results, func(i, j int) bool {
		return s.Results[i].Position < s.Results[j].Position
	})

	cursor := 0
	for _, r := range s.Results {
		if r.Position != cursor {
			break
		}
		cursor++
	}
	s.Cursor = cursor
}

func (s State) positions() map[int]bool {
	out := make(map[int]bool, len(s.Results))
	for _, r := range s.Results {
		out[r.Position] = true
	}
	return out
}
