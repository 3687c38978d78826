package kraconnect

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type batchCompletion struct {
	index  int
	result Result[json.RawMessage]
}

// ExecuteBatch runs every operation concurrently through Do and returns one
// result per operation in input order. A failing operation never affects the
// others. When the batch timeout fires, operations still pending fail with
// KindTimeout; when ctx is canceled or the client closes they fail with
// KindCanceled.
func (c *Client) ExecuteBatch(ctx context.Context, ops []Operation) BatchResult {
	results := make(BatchResult, len(ops))
	if len(ops) == 0 {
		return results
	}

	start := time.Now()
	c.metrics.RecordBatch(len(ops))

	if c.batchTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, c.batchTimeout)
		defer cancelTimeout()
	}
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	done := make(chan batchCompletion, len(ops))

	var sem chan struct{}
	if c.maxConcurrency > 0 {
		sem = make(chan struct{}, c.maxConcurrency)
	}

	for i, op := range ops {
		go func(i int, op Operation) {
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					done <- batchCompletion{index: i, result: c.fail(op, c.debug.RequestIDGen(), start, c.batchFailure(ctx, start))}
					return
				}
			}
			done <- batchCompletion{index: i, result: c.Do(ctx, op)}
		}(i, op)
	}

	resolved := make([]bool, len(ops))
	remaining := len(ops)
	store := func(d batchCompletion) {
		if !resolved[d.index] {
			results[d.index] = d.result
			resolved[d.index] = true
			remaining--
		}
	}

	for remaining > 0 {
		select {
		case d := <-done:
			store(d)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case d := <-done:
					store(d)
				default:
					drained = true
				}
			}
			if remaining > 0 {
				// The pending goroutines still record their own outcome.
				failure := c.batchFailure(ctx, start)
				for i, ok := range resolved {
					if !ok {
						results[i] = Failure[json.RawMessage](annotate(ops[i], c.debug.RequestIDGen(), failure))
						resolved[i] = true
					}
				}
				remaining = 0
			}
		}
	}

	if failed := results.Failed(); len(failed) > 0 {
		c.debugLog(c.debug.LogRequests).Info("Batch completed with failures",
			"size", len(ops),
			"failed", len(failed),
			"duration", time.Since(start))
	}
	return results
}

// batchFailure is the failure recorded for operations still pending when the
// batch context ends.
func (c *Client) batchFailure(ctx context.Context, start time.Time) *Error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		elapsed := time.Since(start)
		if c.batchTimeout > 0 && elapsed >= c.batchTimeout {
			elapsed = c.batchTimeout
		}
		e := NewTimeoutError(elapsed)
		e.Cause = err
		return e
	}
	if c.baseCtx.Err() != nil {
		return newCanceledError(ErrClientClosed)
	}
	return newCanceledError(err)
}
