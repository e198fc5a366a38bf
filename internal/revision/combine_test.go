package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/internal/record"
)

func testContext() page.ResourceContext {
	return page.ResourceContext{Serializer: record.DataSerializer{}}
}

func leafWith(t *testing.T, rev int32, entries map[uint64]string) *page.KeyValueLeafPage {
	t.Helper()
	p := page.NewKeyValueLeafPage(0, page.Document, testContext())
	p.SetRevision(rev)
	for key, v := range entries {
		require.NoError(t, p.Put(key, &record.Data{Key: key, Payload: []byte(v)}))
	}
	return p
}

func payloadAt(t *testing.T, p *page.KeyValueLeafPage, key uint64) string {
	t.Helper()
	r, err := p.Get(key)
	require.NoError(t, err)
	require.NotNil(t, r)
	return string(r.(*record.Data).Payload)
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{Full, Differential, Incremental, SlidingSnapshot} {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("bogus")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestCombineEmptyChain(t *testing.T) {
	_, err := Combine(Full, nil, testContext())
	assert.ErrorIs(t, err, ErrNoLeaves)
}

func TestCombineFullUsesHead(t *testing.T) {
	head := leafWith(t, 2, map[uint64]string{1: "head"})
	older := leafWith(t, 1, map[uint64]string{2: "stale"})

	got, err := Combine(Full, []*page.KeyValueLeafPage{head, older}, testContext())
	require.NoError(t, err)
	assert.Same(t, head, got)
}

func TestCombineIncrementalLatestWins(t *testing.T) {
	a := leafWith(t, 3, map[uint64]string{1: "a3"})
	b := leafWith(t, 2, map[uint64]string{1: "b2", 2: "b2"})
	c := leafWith(t, 1, map[uint64]string{1: "c1", 2: "c1", 3: "c1"})

	got, err := Combine(Incremental, []*page.KeyValueLeafPage{a, b, c}, testContext())
	require.NoError(t, err)
	assert.Equal(t, int32(3), got.Revision())
	assert.Equal(t, "a3", payloadAt(t, got, 1))
	assert.Equal(t, "b2", payloadAt(t, got, 2))
	assert.Equal(t, "c1", payloadAt(t, got, 3))
}

func TestCombineDifferentialDiffPlusBase(t *testing.T) {
	diff := leafWith(t, 4, map[uint64]string{1: "diff"})
	skipped := leafWith(t, 3, map[uint64]string{2: "must not surface"})
	base := leafWith(t, 2, map[uint64]string{1: "base", 3: "base"})

	got, err := Combine(Differential, []*page.KeyValueLeafPage{diff, skipped, base}, testContext())
	require.NoError(t, err)
	assert.Equal(t, "diff", payloadAt(t, got, 1))
	assert.Equal(t, "base", payloadAt(t, got, 3))

	r2, err := got.Get(2)
	require.NoError(t, err)
	assert.Nil(t, r2)
}

func TestCombineSlidingSnapshotFoldsChain(t *testing.T) {
	newest := leafWith(t, 5, map[uint64]string{1: "n"})
	oldest := leafWith(t, 4, map[uint64]string{2: "o"})

	got, err := Combine(SlidingSnapshot, []*page.KeyValueLeafPage{newest, oldest}, testContext())
	require.NoError(t, err)
	assert.Equal(t, "n", payloadAt(t, got, 1))
	assert.Equal(t, "o", payloadAt(t, got, 2))
}

func TestCombineTombstoneShadows(t *testing.T) {
	newest := page.NewKeyValueLeafPage(0, page.Document, testContext())
	newest.SetRevision(2)
	require.NoError(t, newest.Put(1, &record.Tombstone{Key: 1}))
	oldest := leafWith(t, 1, map[uint64]string{1: "old"})

	got, err := Combine(Incremental, []*page.KeyValueLeafPage{newest, oldest}, testContext())
	require.NoError(t, err)

	r, err := got.Get(1)
	require.NoError(t, err)
	assert.True(t, record.IsDeleted(r))
}
