package linkgraph

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/model"
)

func links(pairs ...[2]string) []model.Link {
	out := make([]model.Link, len(pairs))
	for i, p := range pairs {
		out[i] = model.Link{SourceChunkID: p[0], TargetChunkID: p[1], Relation: "references"}
	}
	return out
}

func TestGraph_TargetsReturnsDirectReferences(t *testing.T) {
	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Load(links([2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "c"})))

	out, err := g.Targets("a")
	require.NoError(t, err)
	sort.Strings(out)
	assert.Equal(t, []string{"b", "c"}, out)
}

func TestGraph_SourcesReturnsDirectReferrers(t *testing.T) {
	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Load(links([2]string{"a", "c"}, [2]string{"b", "c"})))

	in, err := g.Sources("c")
	require.NoError(t, err)
	sort.Strings(in)
	assert.Equal(t, []string{"a", "b"}, in)
}

func TestGraph_UnknownChunkHasNoTargetsOrSources(t *testing.T) {
	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Load(links([2]string{"a", "b"})))

	out, err := g.Targets("nonexistent")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGraph_LoadReplacesPreviousGraph(t *testing.T) {
	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Load(links([2]string{"a", "b"})))

	out, err := g.Targets("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out)

	require.NoError(t, g.Load(links([2]string{"x", "y"})))
	out, err = g.Targets("a")
	require.NoError(t, err)
	assert.Empty(t, out, "stale edges from the previous Load must not survive")
}

func TestGraph_DuplicateEdgeIsNotAnError(t *testing.T) {
	g, err := New()
	require.NoError(t, err)
	err = g.Load(links([2]string{"a", "b"}, [2]string{"a", "b"}))
	assert.NoError(t, err)
}
