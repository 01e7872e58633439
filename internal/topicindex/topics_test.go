package topicindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHierarchicalTopics(t *testing.T) {
	idx := New()
	idx.AddEntry("v1", []string{"programming/rust"})
	idx.AddEntry("v2", []string{"programming/python"})
	idx.AddEntry("v3", []string{"cooking/italian"})

	require.ElementsMatch(t, []string{"v1", "v2"}, idx.GetEntries("programming"))
	require.ElementsMatch(t, []string{"programming/rust", "programming/python"}, idx.GetChildren("programming"))
	require.Contains(t, idx.GetAllTopics(), "programming")
	require.Contains(t, idx.GetAllTopics(), "cooking")
}

func TestCoOccurrenceSymmetric(t *testing.T) {
	idx := New()
	idx.AddEntry("v1", []string{"a", "b"})
	require.Equal(t, idx.CoOccurrence("a", "b"), idx.CoOccurrence("b", "a"))
	require.Equal(t, 1, idx.CoOccurrence("a", "b"))
}

func TestRemoveEntryDecrementsCoOccurrence(t *testing.T) {
	idx := New()
	idx.AddEntry("v1", []string{"a", "b"})
	idx.RemoveEntry("v1", []string{"a", "b"})
	require.Equal(t, 0, idx.CoOccurrence("a", "b"))
}

func TestMergeTopic(t *testing.T) {
	idx := New()
	idx.AddEntry("v1", []string{"from"})
	idx.AddEntry("v2", []string{"to"})
	idx.AddEntry("v1", []string{"other"}) // v1 also co-occurs with "other"

	idx.MergeTopic("from", "to")
	require.Empty(t, idx.GetEntries("from"))
	require.ElementsMatch(t, []string{"v1", "v2"}, idx.GetEntries("to"))
}

func TestMergeTopicIdempotentWhenSame(t *testing.T) {
	idx := New()
	idx.AddEntry("v1", []string{"x"})
	idx.MergeTopic("x", "x")
	require.ElementsMatch(t, []string{"v1"}, idx.GetEntries("x"))
}
