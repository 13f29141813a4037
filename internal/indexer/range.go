package indexer

import "fmt"

// BlockRange is an inclusive block range fetched with one eth_getLogs call.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// SplitRange cuts [from, to] into consecutive sub-ranges of at most span
// blocks, in ascending order.
func SplitRange(from, to, span uint64) ([]BlockRange, error) {
	if span == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/span+1)
	for start := from; ; {
		end := to
		if to-start >= span {
			end = start + span - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
		start = end + 1
	}
}
