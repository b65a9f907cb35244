package discover

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opensig/internal/chain"
	"opensig/internal/codec"
	"opensig/internal/crypt"
	"opensig/internal/hexutil"
	"opensig/internal/registry"
)

func testDocHash() [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = 0x01
	}
	return h
}

func testKey(t *testing.T) *crypt.EncryptionKey {
	t.Helper()
	h := testDocHash()
	k, err := crypt.NewEncryptionKey(h[:])
	require.NoError(t, err)
	return k
}

// chainElements materializes the first n elements of the test chain.
func chainElements(n int) []string {
	g := chain.New(testDocHash(), 4)
	out := make([]string, 0, n)
	for _, h := range g.Extend(n) {
		out = append(out, hexutil.Encode0x(h[:]))
	}
	return out
}

// mockQuerier replays canned responses and records the ids of each batch.
type mockQuerier struct {
	responses [][]registry.RawEvent
	batches   [][]string
	err       error
}

func (m *mockQuerier) QuerySignatures(ctx context.Context, ids []string) ([]registry.RawEvent, error) {
	m.batches = append(m.batches, ids)
	if m.err != nil {
		return nil, m.err
	}
	call := len(m.batches) - 1
	if call >= len(m.responses) {
		return nil, nil
	}
	return m.responses[call], nil
}

func eventFor(t *testing.T, sig string, annotation string, at uint64) registry.RawEvent {
	t.Helper()
	data := "0x"
	if annotation != "" {
		var err error
		data, err = codec.Encode(codec.Annotation{Kind: codec.KindString, Content: annotation}, nil)
		require.NoError(t, err)
	}
	return registry.RawEvent{Time: at, Signer: "0x1111111111111111111111111111111111111111", Signature: sig, Data: data}
}

func TestDiscoverSingleShortBatch(t *testing.T) {
	elements := chainElements(5)
	q := &mockQuerier{responses: [][]registry.RawEvent{{
		eventFor(t, elements[0], "first", 100),
		eventFor(t, elements[2], "third", 300),
	}}}

	res, err := Discover(context.Background(), 4, testDocHash(), testKey(t), q)
	require.NoError(t, err)

	// Exactly one batch of exactly ten ids.
	require.Len(t, q.batches, 1)
	assert.Len(t, q.batches[0], BatchSize)

	require.Len(t, res.Events, 2)
	assert.Equal(t, 0, res.Events[0].ChainIndex)
	assert.Equal(t, "first", res.Events[0].Data.Content)
	assert.Equal(t, 2, res.Events[1].ChainIndex)

	// Pointer rewound to the highest confirmed index.
	assert.Equal(t, 2, res.Generator.CurrentIndex())
}

func TestDiscoverNothingPublished(t *testing.T) {
	q := &mockQuerier{}
	res, err := Discover(context.Background(), 4, testDocHash(), testKey(t), q)
	require.NoError(t, err)

	assert.Len(t, q.batches, 1)
	assert.Empty(t, res.Events)
	assert.Equal(t, -1, res.Generator.CurrentIndex())
}

func TestDiscoverContinuation(t *testing.T) {
	elements := chainElements(13)

	batch1 := make([]registry.RawEvent, BatchSize)
	for i := 0; i < BatchSize; i++ {
		batch1[i] = eventFor(t, elements[i], "", uint64(i))
	}
	batch2 := []registry.RawEvent{
		eventFor(t, elements[10], "", 10),
		eventFor(t, elements[11], "", 11),
		eventFor(t, elements[12], "", 12),
	}

	q := &mockQuerier{responses: [][]registry.RawEvent{batch1, batch2}}
	res, err := Discover(context.Background(), 4, testDocHash(), testKey(t), q)
	require.NoError(t, err)

	// Full first batch forces a second query.
	require.Len(t, q.batches, 2)
	assert.NotEqual(t, q.batches[0], q.batches[1])
	assert.Len(t, res.Events, 13)
	assert.Equal(t, 12, res.Generator.CurrentIndex())
}

// A published count that is an exact multiple of the batch size costs one
// extra, empty round trip. Required behavior, not an inefficiency to fix.
func TestDiscoverExactMultipleExtraRound(t *testing.T) {
	elements := chainElements(BatchSize)
	batch := make([]registry.RawEvent, BatchSize)
	for i := range batch {
		batch[i] = eventFor(t, elements[i], "", uint64(i))
	}

	q := &mockQuerier{responses: [][]registry.RawEvent{batch}}
	res, err := Discover(context.Background(), 4, testDocHash(), testKey(t), q)
	require.NoError(t, err)

	assert.Len(t, q.batches, 2)
	assert.Len(t, res.Events, BatchSize)
	assert.Equal(t, BatchSize-1, res.Generator.CurrentIndex())
}

func TestDiscoverGapsFromConcurrentSigners(t *testing.T) {
	// Only elements 1 and 3 returned: a concurrent signer owns 0 and 2.
	elements := chainElements(5)
	q := &mockQuerier{responses: [][]registry.RawEvent{{
		eventFor(t, elements[3], "", 40),
		eventFor(t, elements[1], "", 20),
	}}}

	res, err := Discover(context.Background(), 4, testDocHash(), testKey(t), q)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Generator.CurrentIndex())
}

func TestDiscoverToleratesForeignEntries(t *testing.T) {
	foreign := hexutil.Encode0x(bytes.Repeat([]byte{0xee}, 32))
	elements := chainElements(1)
	q := &mockQuerier{responses: [][]registry.RawEvent{{
		eventFor(t, foreign, "", 1),
		eventFor(t, elements[0], "", 2),
	}}}

	res, err := Discover(context.Background(), 4, testDocHash(), testKey(t), q)
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	assert.Equal(t, -1, res.Events[0].ChainIndex)
	assert.False(t, res.Events[0].Unparseable)
	// Foreign entries never advance the pointer.
	assert.Equal(t, 0, res.Generator.CurrentIndex())
}

func TestDiscoverUnparseableRecords(t *testing.T) {
	elements := chainElements(1)
	q := &mockQuerier{responses: [][]registry.RawEvent{{
		{Malformed: true},
		{Signature: "0x1234"}, // not a 32-byte hash
		eventFor(t, elements[0], "ok", 5),
	}}}

	res, err := Discover(context.Background(), 4, testDocHash(), testKey(t), q)
	require.NoError(t, err)

	require.Len(t, res.Events, 3)
	for _, ev := range res.Events[:2] {
		assert.True(t, ev.Unparseable)
		assert.Zero(t, ev.Time)
		assert.Empty(t, ev.Signatory)
		assert.Empty(t, ev.Signature)
		assert.Equal(t, codec.KindNone, ev.Data.Kind)
	}
	assert.False(t, res.Events[2].Unparseable)
	assert.Equal(t, 0, res.Generator.CurrentIndex())
}

func TestDiscoverQueryFailure(t *testing.T) {
	cause := errors.New("rpc unreachable")
	q := &mockQuerier{err: cause}

	res, err := Discover(context.Background(), 4, testDocHash(), testKey(t), q)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, res, "no partial state on failure")
}

func TestDiscoverEncryptedAnnotations(t *testing.T) {
	key := testKey(t)
	wire, err := codec.Encode(codec.Annotation{Kind: codec.KindString, Content: "sealed", Encrypted: true}, key)
	require.NoError(t, err)

	elements := chainElements(1)
	q := &mockQuerier{responses: [][]registry.RawEvent{{
		{Time: 9, Signer: "0xabc", Signature: elements[0], Data: wire},
	}}}

	res, err := Discover(context.Background(), 4, testDocHash(), key, q)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "sealed", res.Events[0].Data.Content)
	assert.True(t, res.Events[0].Data.Encrypted)
}
