package task

// Batches splits items into contiguous slices of at most size b, in index
// order; the last slice may be shorter. Re-exported by internal/batch as
// batch.Batches and used by internal/pipeline for stage batching, so both
// depend on one implementation rather than hand-rolling the same loop.
func Batches[T any](items []T, b int) [][]T {
	if b <= 0 {
		b = 1
	}
	var out [][]T
	for i := 0; i < len(items); i += b {
		end := i + b
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
