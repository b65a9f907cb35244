// Package chain implements the deterministic opensig signature hash chain.
//
// Every (document hash, chain id) pair defines an unbounded sequence of
// one-time signature hashes:
//
//	Hc   = SHA-256(decimalString(chainId) || documentHash)
//	H[0] = SHA-256(Hc)
//	H[i] = SHA-256(Hc || H[i-1])
//
// The chain id is mixed into the seed so the same document yields unrelated
// sequences on different blockchains. The recurrence is fixed by the opensig
// protocol; any deviation breaks interoperability with other clients.
package chain

import (
	"crypto/sha256"
	"strconv"

	"opensig/internal/hexutil"
)

// HashLen is the size of one chain element in bytes.
const HashLen = 32

// Generator lazily materializes a signature hash chain and tracks a pointer
// to the last element consumed or confirmed as published.
//
// Materialization is append-only: an element, once computed, is never
// recomputed or truncated. Reset only moves the pointer, which makes
// rewinding after a failed publish free. A Generator is not safe for
// concurrent use; each Document owns exactly one at a time.
type Generator struct {
	docHash [32]byte
	chainID uint64

	// seed is computed once, on the first Extend.
	seed       [32]byte
	seedReady  bool

	elements [][32]byte
	pointer  int // -1 = nothing consumed
}

// New creates a generator for the given document hash and chain id.
// Nothing is computed until the first Extend call.
func New(documentHash [32]byte, chainID uint64) *Generator {
	return &Generator{
		docHash: documentHash,
		chainID: chainID,
		pointer: -1,
	}
}

// ChainID returns the chain id this generator derives from.
func (g *Generator) ChainID() uint64 { return g.chainID }

// DocumentHash returns the document hash this generator derives from.
func (g *Generator) DocumentHash() [32]byte { return g.docHash }

// ensureSeed computes the chain-specific seed on first use.
func (g *Generator) ensureSeed() {
	if g.seedReady {
		return
	}
	g.seed = sha256.Sum256(hexutil.Concat(
		[]byte(strconv.FormatUint(g.chainID, 10)),
		g.docHash[:],
	))
	g.seedReady = true
}

// materialize grows the chain so at least n elements exist.
func (g *Generator) materialize(n int) {
	g.ensureSeed()
	for len(g.elements) < n {
		var next [32]byte
		if len(g.elements) == 0 {
			next = sha256.Sum256(g.seed[:])
		} else {
			prev := g.elements[len(g.elements)-1]
			next = sha256.Sum256(hexutil.Concat(g.seed[:], prev[:]))
		}
		g.elements = append(g.elements, next)
	}
}

// Extend advances the pointer by n, materializing elements as needed, and
// returns the n newly-pointed-to elements in chain order.
func (g *Generator) Extend(n int) [][32]byte {
	if n <= 0 {
		return nil
	}
	g.materialize(g.pointer + n + 1)

	out := make([][32]byte, n)
	copy(out, g.elements[g.pointer+1:g.pointer+n+1])
	g.pointer += n
	return out
}

// Current returns the element at the pointer. ok is false when the pointer
// is -1 (nothing consumed yet).
func (g *Generator) Current() (h [32]byte, ok bool) {
	if g.pointer < 0 {
		return h, false
	}
	return g.elements[g.pointer], true
}

// CurrentIndex returns the pointer position (-1 if nothing consumed).
func (g *Generator) CurrentIndex() int { return g.pointer }

// ElementAt returns the materialized element at absolute index i. It never
// extends the chain; ok is false for indices not yet materialized.
func (g *Generator) ElementAt(i int) (h [32]byte, ok bool) {
	if i < 0 || i >= len(g.elements) {
		return h, false
	}
	return g.elements[i], true
}

// IndexOf returns the index of the materialized element matching the given
// hex string (0x prefix and case ignored), or -1 if absent.
func (g *Generator) IndexOf(elementHex string) int {
	want := hexutil.TrimHexString(elementHex)
	for i, e := range g.elements {
		if hexutil.Encode(e[:]) == want {
			return i
		}
	}
	return -1
}

// Reset moves the pointer to n without truncating materialized elements.
// Reset(-1) rewinds to the initial state.
func (g *Generator) Reset(n int) {
	if n < -1 {
		n = -1
	}
	g.pointer = n
}

// Size returns the number of elements at or before the pointer.
func (g *Generator) Size() int { return g.pointer + 1 }
