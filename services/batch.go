package services

import (
	"context"
	"log"

	"crowdvolt_tracker/config"
)

// BatchReport summarizes one batched write. Failed holds the zero-based
// indexes of batches the sink rejected; their records are not retried.
type BatchReport struct {
	Records int
	Batches int
	Sent    int
	Failed  []int
	Errors  []error
}

func (r *BatchReport) OK() bool {
	return len(r.Failed) == 0
}

// writeBatches splits items into chunks of at most size and hands each to
// write. A failing chunk is logged and recorded; later chunks are still sent.
func writeBatches[T any](ctx context.Context, label string, items []T, size int, write func(context.Context, []T) error) *BatchReport {
	if size <= 0 || size > config.MaxBatchSize {
		size = config.MaxBatchSize
	}

	report := &BatchReport{Records: len(items)}
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batch := items[start:end]
		idx := report.Batches
		report.Batches++

		if err := write(ctx, batch); err != nil {
			log.Printf("Sink: %s batch %d (%d records) failed: %v", label, idx+1, len(batch), err)
			report.Failed = append(report.Failed, idx)
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Sent += len(batch)
	}

	return report
}
