package sink

import (
	"sync"

	"github.com/axiomhq/hyperloglog"
)

// seriesTracker estimates the number of distinct series offered to the sink
// with a fixed-memory HyperLogLog sketch (~12KB at the default precision).
type seriesTracker struct {
	mu     sync.Mutex
	sketch *hyperloglog.Sketch
}

func newSeriesTracker() *seriesTracker {
	return &seriesTracker{sketch: hyperloglog.New()}
}

// observe adds one series label hash to the sketch.
func (t *seriesTracker) observe(hash uint64) {
	t.mu.Lock()
	t.sketch.InsertHash(hash)
	t.mu.Unlock()
}

// estimate returns the estimated distinct series count. It takes the full
// lock because Estimate may mutate internal sketch state.
func (t *seriesTracker) estimate() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sketch.Estimate()
}
