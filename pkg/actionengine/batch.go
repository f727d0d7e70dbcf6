package actionengine

import (
	"fmt"
)

// BatchPlan is what a batch policy writes into action.Data under
// "deletion" or "creation".
type BatchPlan struct {
	Count      int
	BatchSize  int // -1 == single wave, 0 == policy error
	PauseTime  float64
	Candidates []string
}

// Waves splits Count items into waves of at most BatchSize:
// BatchSize == -1 means one wave containing everything; BatchSize == 0 is a
// policy error since it would never make progress.
func Waves(count, batchSize int) ([]int, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("actionengine: batch_size of 0 is a policy error")
	}
	if batchSize == -1 || batchSize >= count {
		if count == 0 {
			return nil, nil
		}
		return []int{count}, nil
	}

	var waves []int
	remaining := count
	for remaining > 0 {
		n := batchSize
		if n > remaining {
			n = remaining
		}
		waves = append(waves, n)
		remaining -= n
	}
	return waves, nil
}
