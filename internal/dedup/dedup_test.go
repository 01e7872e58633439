package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckDuplicateByFingerprint(t *testing.T) {
	idx := New(DefaultThreshold)
	idx.Add(Candidate{ID: "id1", Text: "Use bun test", Embedding: []float32{1, 0, 0}})

	r := idx.CheckDuplicate("Use bun test", []float32{0, 1, 0})
	require.True(t, r.IsDuplicate)
	require.Equal(t, "id1", r.ExistingID)
}

func TestCheckDuplicateByCosine(t *testing.T) {
	idx := New(0.9)
	idx.Add(Candidate{ID: "id1", Text: "alpha", Embedding: []float32{1, 0, 0}})

	r := idx.CheckDuplicate("completely different text", []float32{1, 0.001, 0})
	require.True(t, r.IsDuplicate)
	require.Equal(t, "id1", r.ExistingID)
}

func TestCheckDuplicateFalse(t *testing.T) {
	idx := New(0.9)
	idx.Add(Candidate{ID: "id1", Text: "alpha", Embedding: []float32{1, 0, 0}})

	r := idx.CheckDuplicate("beta", []float32{0, 1, 0})
	require.False(t, r.IsDuplicate)
}

func TestFindDuplicateGroups(t *testing.T) {
	idx := New(0.9)
	idx.Add(Candidate{ID: "a", Text: "same text", Embedding: []float32{1, 0}})
	idx.Add(Candidate{ID: "b", Text: "same text", Embedding: []float32{1, 0}})
	idx.Add(Candidate{ID: "c", Text: "unique", Embedding: []float32{0, 1}})

	groups := idx.FindDuplicateGroups(0)
	require.Len(t, groups, 1)
	require.ElementsMatch(t, []string{"a", "b"}, groups[0].IDs)
}
