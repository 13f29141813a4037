package model

// Batch is one fully fetched sub-range ready to be committed together with
// the cursor that marks it done.
type Batch struct {
	Scope  Scope
	Events []ChainEvent
	Cursor uint64
}

// BatchResult reports what a committed batch changed. Added holds the events
// that were new to the store, in batch order.
type BatchResult struct {
	Inserted int
	Skipped  int
	Wallets  int
	Added    []ChainEvent
}
