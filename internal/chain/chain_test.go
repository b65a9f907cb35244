package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func testDocHash() [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = 0x01
	}
	return h
}

func TestDeterminism(t *testing.T) {
	a := New(testDocHash(), 4)
	b := New(testDocHash(), 4)

	ea := a.Extend(50)
	eb := b.Extend(50)

	for i := range ea {
		if ea[i] != eb[i] {
			t.Fatalf("element %d differs between independent generators", i)
		}
	}
}

func TestRecurrence(t *testing.T) {
	docHash := testDocHash()
	g := New(docHash, 4)
	elements := g.Extend(10)

	// Hc = SHA-256(decimal chain id || document hash)
	seed := sha256.Sum256(append([]byte("4"), docHash[:]...))

	want := sha256.Sum256(seed[:])
	if elements[0] != want {
		t.Errorf("element 0 = %x, want SHA-256(Hc) = %x", elements[0], want)
	}

	for i := 1; i < len(elements); i++ {
		input := append(append([]byte{}, seed[:]...), elements[i-1][:]...)
		want = sha256.Sum256(input)
		if elements[i] != want {
			t.Errorf("element %d does not satisfy the chain recurrence", i)
		}
	}
}

// TestKnownVector pins the first two elements for docHash = 0x01 * 32,
// chainId = 4. Other opensig clients must reproduce these exact bytes.
func TestKnownVector(t *testing.T) {
	docHash := testDocHash()
	g := New(docHash, 4)
	elements := g.Extend(2)

	seed := sha256.Sum256(append([]byte{'4'}, docHash[:]...))
	h0 := sha256.Sum256(seed[:])
	h1 := sha256.Sum256(append(append([]byte{}, seed[:]...), h0[:]...))

	if elements[0] != h0 {
		t.Errorf("vector element 0 mismatch:\n got %x\nwant %x", elements[0], h0)
	}
	if elements[1] != h1 {
		t.Errorf("vector element 1 mismatch:\n got %x\nwant %x", elements[1], h1)
	}
}

func TestChainIDSeparation(t *testing.T) {
	a := New(testDocHash(), 1)
	b := New(testDocHash(), 137)
	if a.Extend(1)[0] == b.Extend(1)[0] {
		t.Error("different chain ids must yield different sequences")
	}
}

func TestUniqueness(t *testing.T) {
	g := New(testDocHash(), 4)
	elements := g.Extend(100)

	seen := make(map[[32]byte]int, len(elements))
	for i, e := range elements {
		if j, dup := seen[e]; dup {
			t.Fatalf("elements %d and %d collide", j, i)
		}
		seen[e] = i
	}
}

func TestPointerLaw(t *testing.T) {
	g := New(testDocHash(), 4)

	if g.CurrentIndex() != -1 {
		t.Errorf("fresh pointer = %d, want -1", g.CurrentIndex())
	}
	if _, ok := g.Current(); ok {
		t.Error("Current should report none on a fresh generator")
	}
	if g.Size() != 0 {
		t.Errorf("fresh Size = %d, want 0", g.Size())
	}

	g.Extend(7)
	if g.CurrentIndex() != 6 {
		t.Errorf("after Extend(7) pointer = %d, want 6", g.CurrentIndex())
	}
	if g.Size() != 7 {
		t.Errorf("after Extend(7) Size = %d, want 7", g.Size())
	}
}

func TestResetKeepsElements(t *testing.T) {
	g := New(testDocHash(), 4)
	first := g.Extend(10)

	g.Reset(2)
	if g.CurrentIndex() != 2 {
		t.Errorf("after Reset(2) pointer = %d, want 2", g.CurrentIndex())
	}

	// Every previously materialized element must be unchanged.
	for i, want := range first {
		got, ok := g.ElementAt(i)
		if !ok {
			t.Fatalf("element %d truncated by Reset", i)
		}
		if got != want {
			t.Errorf("element %d changed after Reset", i)
		}
	}

	// Re-extending walks back over the same elements.
	re := g.Extend(3)
	for i, e := range re {
		if e != first[3+i] {
			t.Errorf("re-extended element %d differs from original", 3+i)
		}
	}
}

func TestResetBelowStart(t *testing.T) {
	g := New(testDocHash(), 4)
	g.Extend(3)
	g.Reset(-5)
	if g.CurrentIndex() != -1 {
		t.Errorf("Reset clamps at -1, got %d", g.CurrentIndex())
	}
}

func TestElementAtNoExtension(t *testing.T) {
	g := New(testDocHash(), 4)
	g.Extend(3)

	if _, ok := g.ElementAt(5); ok {
		t.Error("ElementAt must not materialize new elements")
	}
	if _, ok := g.ElementAt(-1); ok {
		t.Error("ElementAt(-1) should report none")
	}
	if e, ok := g.ElementAt(2); !ok || bytes.Equal(e[:], make([]byte, 32)) {
		t.Error("materialized element should be returned")
	}
}

func TestIndexOf(t *testing.T) {
	g := New(testDocHash(), 4)
	elements := g.Extend(5)

	target := hex.EncodeToString(elements[3][:])
	if got := g.IndexOf(target); got != 3 {
		t.Errorf("IndexOf = %d, want 3", got)
	}
	// 0x prefix and case must be ignored.
	if got := g.IndexOf("0x" + target); got != 3 {
		t.Errorf("IndexOf with 0x prefix = %d, want 3", got)
	}
	if got := g.IndexOf(hex.EncodeToString(bytes.Repeat([]byte{0xee}, 32))); got != -1 {
		t.Errorf("IndexOf for absent element = %d, want -1", got)
	}
}

func TestExtendZero(t *testing.T) {
	g := New(testDocHash(), 4)
	if out := g.Extend(0); out != nil {
		t.Errorf("Extend(0) = %v, want nil", out)
	}
	if g.CurrentIndex() != -1 {
		t.Error("Extend(0) must not move the pointer")
	}
}
