package core

import (
	"fmt"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

// TaskIDGenerator assigns ids to task specs that arrive without one.
type TaskIDGenerator interface {
	Next(track *models.Track, taken map[string]bool) string
}

// seqTaskIDGenerator numbers tasks per track using the track's NextTaskSeq
// counter, so ids survive restarts without a separate counter file.
type seqTaskIDGenerator struct {
	prefix   string
	padWidth int
}

// NewTaskIDGenerator creates a TaskIDGenerator producing ids like T-001.
// padWidth controls the zero-padding width of the numeric portion. Use 0 for
// no padding (e.g., T-1).
func NewTaskIDGenerator(prefix string, padWidth int) TaskIDGenerator {
	if prefix == "" {
		prefix = "T"
	}
	return &seqTaskIDGenerator{prefix: prefix, padWidth: padWidth}
}

// Next increments track.NextTaskSeq until it yields an id not in taken and
// returns that id. The caller records the new id in taken.
func (g *seqTaskIDGenerator) Next(track *models.Track, taken map[string]bool) string {
	for {
		track.NextTaskSeq++
		id := g.format(track.NextTaskSeq)
		if !taken[id] {
			return id
		}
	}
}

func (g *seqTaskIDGenerator) format(n int) string {
	if g.padWidth > 0 {
		return fmt.Sprintf("%s-%0*d", g.prefix, g.padWidth, n)
	}
	return fmt.Sprintf("%s-%d", g.prefix, n)
}
