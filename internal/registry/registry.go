// Package registry defines the two collaborator capabilities the opensig
// core depends on — querying the signature event log and publishing a
// signature — together with concrete adapters per transport.
//
// The core never talks to a blockchain directly; it sees only these two
// operations. Failures from either collaborator pass through to the caller
// undecorated.
package registry

import (
	"context"
	"errors"
)

// ErrNotSupported indicates a registry backend that does not implement an
// operation. It signals a configuration error, not a runtime I/O failure.
var ErrNotSupported = errors.New("registry: operation not supported by this backend")

// RawEvent is one record from the registry's signature event log, as
// returned by a Querier. Fields mirror the on-chain event: time in seconds,
// the signer's account address, the 32-byte signature hash (hex) and the
// annotation payload (hex).
type RawEvent struct {
	Time      uint64
	Signer    string
	Signature string
	Data      string

	// Malformed marks a log record whose event data failed schema
	// decoding. The discovery layer turns these into explicit
	// unparseable events instead of dropping them.
	Malformed bool
}

// PublishResult reports a submitted signature transaction. Confirm blocks
// until the registry considers the transaction final; its timeout and retry
// policy belong to the adapter, not the core.
type PublishResult struct {
	TxHash        string
	SignerAddress string
	Confirm       func(ctx context.Context) error
}

// Querier looks up published signatures by their hash identifiers.
// Implementations must not deduplicate or reorder beyond what the
// underlying log source does; callers tolerate noise and subsets.
type Querier interface {
	QuerySignatures(ctx context.Context, ids []string) ([]RawEvent, error)
}

// Publisher registers a signature hash with its encoded annotation data.
type Publisher interface {
	PublishSignature(ctx context.Context, signature, data string) (*PublishResult, error)
}

// Registry combines both collaborator capabilities.
type Registry interface {
	Querier
	Publisher
}

// Unsupported is a Registry whose operations all fail loudly with
// ErrNotSupported. It stands in where a backend has not been configured, so
// integration mistakes surface immediately instead of as silent no-ops.
type Unsupported struct{}

// QuerySignatures implements Querier.
func (Unsupported) QuerySignatures(ctx context.Context, ids []string) ([]RawEvent, error) {
	return nil, ErrNotSupported
}

// PublishSignature implements Publisher.
func (Unsupported) PublishSignature(ctx context.Context, signature, data string) (*PublishResult, error) {
	return nil, ErrNotSupported
}
