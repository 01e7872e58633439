package metadataindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqNeq(t *testing.T) {
	md := map[string]string{"topic": "rust"}
	require.True(t, Matches(md, Filter{Key: "topic", Mode: Eq, Value: "rust"}))
	require.False(t, Matches(md, Filter{Key: "topic", Mode: Eq, Value: "python"}))
	require.True(t, Matches(md, Filter{Key: "topic", Mode: Neq, Value: "python"}))
}

func TestMissingKey(t *testing.T) {
	md := map[string]string{}
	require.False(t, Matches(md, Filter{Key: "topic", Mode: Eq, Value: "rust"}))
	require.True(t, Matches(md, Filter{Key: "topic", Mode: Neq, Value: "rust"}))
	require.False(t, Matches(md, Filter{Key: "topic", Mode: Gt, Value: "1"}))
}

func TestNumericComparisons(t *testing.T) {
	md := map[string]string{"score": "5"}
	require.True(t, Matches(md, Filter{Key: "score", Mode: Gt, Value: "3"}))
	require.True(t, Matches(md, Filter{Key: "score", Mode: Gte, Value: "5"}))
	require.True(t, Matches(md, Filter{Key: "score", Mode: Lt, Value: "10"}))
	require.False(t, Matches(md, Filter{Key: "score", Mode: Lte, Value: "4"}))
}

func TestInNotIn(t *testing.T) {
	md := map[string]string{"tag": "b"}
	require.True(t, Matches(md, Filter{Key: "tag", Mode: In, Value: []string{"a", "b"}}))
	require.False(t, Matches(md, Filter{Key: "tag", Mode: NotIn, Value: []string{"a", "b"}}))
}

func TestBetween(t *testing.T) {
	md := map[string]string{"score": "5"}
	require.True(t, Matches(md, Filter{Key: "score", Mode: Between, Value: []string{"1", "10"}}))
	require.False(t, Matches(md, Filter{Key: "score", Mode: Between, Value: []string{"10", "1"}}))
}

func TestContainsSubstringAndJSONArray(t *testing.T) {
	md := map[string]string{"text": "hello world", "topics": `["a","b"]`}
	require.True(t, Matches(md, Filter{Key: "text", Mode: Contains, Value: "world"}))
	require.True(t, Matches(md, Filter{Key: "topics", Mode: Contains, Value: "a"}))
	require.False(t, Matches(md, Filter{Key: "topics", Mode: Contains, Value: "z"}))
}

func TestMatchesAllIsAND(t *testing.T) {
	md := map[string]string{"topic": "rust", "score": "5"}
	require.True(t, MatchesAll(md, []Filter{
		{Key: "topic", Mode: Eq, Value: "rust"},
		{Key: "score", Mode: Gte, Value: "5"},
	}))
	require.False(t, MatchesAll(md, []Filter{
		{Key: "topic", Mode: Eq, Value: "rust"},
		{Key: "score", Mode: Gt, Value: "5"},
	}))
}
