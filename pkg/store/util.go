package store

import (
	"slices"

	"docgraph/pkg/common"
)

// ChunkRange calls fn for consecutive [start, end) windows of at most
// chunkSize over total items.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings drops empty and repeated values, keeping first occurrences.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// StatusAllowed reports whether status satisfies a transition's From list.
func StatusAllowed(from []common.DocumentStatus, status common.DocumentStatus) bool {
	return len(from) == 0 || slices.Contains(from, status)
}

// StartError maps the status found by a start attempt to its error.
func StartError(status common.DocumentStatus) error {
	switch status {
	case common.StatusNew:
		return nil
	case common.StatusProcessing:
		return ErrAlreadyProcessing
	default:
		return ErrNotStartable
	}
}
