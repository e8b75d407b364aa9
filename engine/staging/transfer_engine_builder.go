package staging

// DefaultCapacity is the staging ring size used when WithCapacity is not given.
const DefaultCapacity = 8 << 20

// DefaultAlignment is the offset alignment of every staged write. Device copies require
// 4-byte aligned offsets and sizes.
const DefaultAlignment = 4

// TransferEngineBuilderOption is a functional option applied to a transfer engine during
// construction via NewTransferEngine.
type TransferEngineBuilderOption func(*transferEngine)

// WithCapacity sets the staging ring size in bytes.
//
// Parameters:
//   - capacity: ring size in bytes, rounded up to the alignment (default 8 MiB)
//
// Returns:
//   - TransferEngineBuilderOption: a function that applies the capacity option
func WithCapacity(capacity uint64) TransferEngineBuilderOption {
	return func(e *transferEngine) {
		e.capacity = capacity
	}
}

// WithAlignment sets the offset alignment of staged writes.
//
// Parameters:
//   - alignment: a power of two; other values are ignored (default 4)
//
// Returns:
//   - TransferEngineBuilderOption: a function that applies the alignment option
func WithAlignment(alignment uint64) TransferEngineBuilderOption {
	return func(e *transferEngine) {
		if alignment > 0 && alignment&(alignment-1) == 0 {
			e.alignment = alignment
		}
	}
}
