// Package discover finds the published prefix of a signature hash chain.
//
// Chains are unbounded and most documents carry few signatures, so the
// registry is probed in fixed batches of ten hashes. A batch that comes back
// full may hide more signatures beyond it, so probing continues; a short
// batch terminates the search. The termination rule is part of the opensig
// protocol: when the published count is an exact multiple of the batch size
// the search costs one extra empty round trip, and other clients expect
// exactly that behavior.
package discover

import (
	"context"
	"fmt"

	"opensig/internal/chain"
	"opensig/internal/codec"
	"opensig/internal/crypt"
	"opensig/internal/hexutil"
	"opensig/internal/registry"
)

// BatchSize is the number of chain elements probed per registry query.
// Fixed by the protocol; changing it breaks interoperability.
const BatchSize = 10

// Event is one confirmed signature discovered on the registry.
type Event struct {
	// Time is the registration time in seconds since the epoch.
	Time uint64

	// Signatory is the account address that published the signature.
	Signatory string

	// Signature is the published chain element, 0x-prefixed hex.
	Signature string

	// ChainIndex is the element's position in the hash chain, or -1 for
	// log noise that matches no materialized element.
	ChainIndex int

	// Data is the decoded annotation.
	Data codec.Annotation

	// Unparseable marks a log record that failed schema decoding. All
	// other fields are zero; discovery keeps the record so callers can
	// see that something was published even if it cannot be read.
	Unparseable bool
}

// Result carries the discovered events and the generator positioned at the
// last confirmed chain element, ready for the next Sign.
type Result struct {
	Events    []Event
	Generator *chain.Generator
}

// Discover probes the registry for published signatures of the given
// document on the given chain. On success the returned generator's pointer
// sits at the highest confirmed index (-1 if nothing was found). On failure
// no partial state is returned.
func Discover(ctx context.Context, chainID uint64, documentHash [32]byte, key *crypt.EncryptionKey, querier registry.Querier) (*Result, error) {
	gen := chain.New(documentHash, chainID)

	var events []Event
	highest := -1

	for {
		ids := make([]string, 0, BatchSize)
		for _, h := range gen.Extend(BatchSize) {
			ids = append(ids, hexutil.Encode0x(h[:]))
		}

		records, err := querier.QuerySignatures(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("query signatures: %w", err)
		}

		for _, rec := range records {
			ev, ok := decodeRecord(rec, gen, key)
			if ok && ev.ChainIndex > highest {
				highest = ev.ChainIndex
			}
			events = append(events, ev)
		}

		// A full batch may hide more signatures beyond it.
		if len(records) < BatchSize {
			break
		}
	}

	gen.Reset(highest)
	return &Result{Events: events, Generator: gen}, nil
}

// decodeRecord turns a raw log record into an Event. Records that fail
// schema parsing become a degenerate unparseable event rather than aborting
// the batch; ok is false for those.
func decodeRecord(rec registry.RawEvent, gen *chain.Generator, key *crypt.EncryptionKey) (Event, bool) {
	if rec.Malformed || !isSignatureHash(rec.Signature) {
		return Event{ChainIndex: -1, Data: codec.None(), Unparseable: true}, false
	}

	sig, _ := hexutil.Decode(rec.Signature)
	return Event{
		Time:       rec.Time,
		Signatory:  rec.Signer,
		Signature:  hexutil.Encode0x(sig),
		ChainIndex: gen.IndexOf(rec.Signature),
		Data:       codec.Decode(rec.Data, key),
	}, true
}

// isSignatureHash reports whether s is a well-formed 32-byte hex hash.
func isSignatureHash(s string) bool {
	return hexutil.IsHex(s) && len(hexutil.Strip0x(s)) == 2*chain.HashLen
}
