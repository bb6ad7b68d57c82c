package workflow

import "context"

// FindDuplicates returns, for every transaction id shared by more than one
// uploaded record in the batch, the number of records carrying it. Uploaded
// records are expected to be unique per (transaction id, batch) at the
// storage layer, but that invariant is not enforced end-to-end, so the
// detector stays.
func (e *Engine) FindDuplicates(ctx context.Context, batchId string) (map[string]int, error) {
	return e.store.DuplicateTransactionCounts(ctx, batchId)
}
