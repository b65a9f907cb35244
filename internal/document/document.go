// Package document binds a document hash to a signature chain on one
// blockchain and drives the verify-then-sign lifecycle.
//
// A Document must be verified before it can be signed: verification is what
// positions the hash chain at the last published element, and signing
// consumes the next one. Each successful Verify replaces the Document's
// generator wholesale; the generator is never shared.
package document

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"opensig/internal/chain"
	"opensig/internal/codec"
	"opensig/internal/crypt"
	"opensig/internal/discover"
	"opensig/internal/hexutil"
	"opensig/internal/logging"
	"opensig/internal/registry"
)

// Errors
var (
	ErrHashAlreadySet = errors.New("document: hash already initialized")
	ErrHashNotSet     = errors.New("document: no document hash")
	ErrNotVerified    = errors.New("document: sign requires a prior successful verify")
	ErrBusy           = errors.New("document: operation already in flight")
)

// SignResult reports a successfully submitted signature.
type SignResult struct {
	// SignatureHash is the chain element that was registered, 0x hex.
	SignatureHash string

	// ChainIndex is the element's position in the chain.
	ChainIndex int

	// TxHash identifies the registry transaction.
	TxHash string

	// SignerAddress is the account that submitted the transaction.
	SignerAddress string

	// Confirm blocks until the registry considers the transaction final.
	Confirm func(ctx context.Context) error
}

// Document is a stateful wrapper around one document hash on one chain.
// Safe for concurrent use; concurrent Sign attempts are rejected, not
// queued.
type Document struct {
	chainID uint64
	reg     registry.Registry
	log     *logging.Logger

	mu      sync.Mutex
	hash    [32]byte
	hashSet bool
	key     *crypt.EncryptionKey
	gen     *chain.Generator
	events  []discover.Event
	busy    bool
}

// New creates an empty Document for the given chain and registry backend.
// The hash must be supplied via SetHash before the first Verify.
func New(chainID uint64, reg registry.Registry) *Document {
	return &Document{
		chainID: chainID,
		reg:     reg,
		log:     logging.Default().WithComponent("document"),
	}
}

// NewFromHash creates a Document bound to a known 32-byte document hash.
func NewFromHash(chainID uint64, hash [32]byte, reg registry.Registry) (*Document, error) {
	d := New(chainID, reg)
	if err := d.SetHash(hash); err != nil {
		return nil, err
	}
	return d, nil
}

// SetHash initializes the document hash and derives the annotation
// encryption key from it. The hash is immutable: setting it twice fails.
func (d *Document) SetHash(hash [32]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setHashLocked(hash)
}

func (d *Document) setHashLocked(hash [32]byte) error {
	if d.hashSet {
		return ErrHashAlreadySet
	}
	key, err := crypt.NewEncryptionKey(hash[:])
	if err != nil {
		return err
	}
	d.hash = hash
	d.hashSet = true
	d.key = key
	return nil
}

// Hash returns the document hash. ok is false before the hash is set.
func (d *Document) Hash() (h [32]byte, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hash, d.hashSet
}

// ChainID returns the chain this document is bound to.
func (d *Document) ChainID() uint64 { return d.chainID }

// Events returns the signature events found by the most recent Verify.
func (d *Document) Events() []discover.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]discover.Event, len(d.events))
	copy(out, d.events)
	return out
}

// Verify discovers which prefix of the document's signature chain has been
// published. It is idempotent: each successful call replaces the previous
// generator and event list. A Verify concurrent with an in-flight Sign is
// rejected with ErrBusy.
func (d *Document) Verify(ctx context.Context) ([]discover.Event, error) {
	d.mu.Lock()
	if !d.hashSet {
		d.mu.Unlock()
		return nil, ErrHashNotSet
	}
	if d.busy {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	d.busy = true
	hash, key := d.hash, d.key
	d.mu.Unlock()

	res, err := discover.Discover(ctx, d.chainID, hash, key, d.reg)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	if err != nil {
		return nil, err
	}

	d.gen = res.Generator
	d.events = res.Events
	d.log.Debug("document verified",
		"chain", d.chainID,
		"signatures", len(res.Events),
		"pointer", res.Generator.CurrentIndex())

	// d.mu is still held here; calling d.Events() would self-deadlock.
	out := make([]discover.Event, len(d.events))
	copy(out, d.events)
	return out, nil
}

// Sign consumes the next unused chain element and publishes it with the
// encoded annotation. At most one Sign may be in flight; concurrent
// attempts fail with ErrBusy. If the publish collaborator fails, the chain
// pointer is rolled back so a retry reuses the same element, and the
// collaborator's error is returned as-is.
func (d *Document) Sign(ctx context.Context, annotation codec.Annotation) (*SignResult, error) {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	if d.gen == nil {
		d.mu.Unlock()
		return nil, ErrNotVerified
	}

	data, err := codec.Encode(annotation, d.key)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("encode annotation: %w", err)
	}

	// Tentatively consume the next element; rolled back on failure.
	next := d.gen.Extend(1)[0]
	index := d.gen.CurrentIndex()
	d.busy = true
	d.mu.Unlock()

	sigHex := hexutil.Encode0x(next[:])
	pub, pubErr := d.reg.PublishSignature(ctx, sigHex, data)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false

	if pubErr != nil {
		d.gen.Reset(index - 1)
		return nil, pubErr
	}

	d.log.Info("signature published",
		"chain", d.chainID,
		"index", index,
		"tx", pub.TxHash)

	return &SignResult{
		SignatureHash: sigHex,
		ChainIndex:    index,
		TxHash:        pub.TxHash,
		SignerAddress: pub.SignerAddress,
		Confirm:       pub.Confirm,
	}, nil
}
