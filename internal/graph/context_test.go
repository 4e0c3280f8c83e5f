package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/taskgraph/internal/apperr"
	"github.com/starford/taskgraph/internal/models"
)

func seedContextGraph(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	for _, name := range []string{"Config", "Note", "Tag", "Unused"} {
		require.NoError(t, s.UpsertDataStructure(models.DataStructureDef{Name: name}))
	}
	defs := []models.FunctionDef{fn("loadConfig"), fn("parseNote"), fn("indexTags", "parseNote"), fn("render", "indexTags", "loadConfig"), fn("unrelated")}
	defs[0].Uses = []string{"Config"}
	defs[1].Uses = []string{"Note"}
	defs[2].Uses = []string{"Tag", "Note"}
	defs[4].Uses = []string{"Unused"}
	for _, d := range defs {
		require.NoError(t, s.UpsertFunction(d))
	}
	return s
}

func TestMinimalContext(t *testing.T) {
	s := seedContextGraph(t)

	ctx, err := s.MinimalContext("render")
	require.NoError(t, err)
	assert.Equal(t, "render", ctx.Target.ID)
	assert.Equal(t, []string{"loadConfig", "parseNote", "indexTags"}, ctx.DependencyIDs())

	names := make([]string, 0, len(ctx.DataStructures))
	for _, d := range ctx.DataStructures {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Config", "Note", "Tag"}, names)
}

func TestMinimalContext_Leaf(t *testing.T) {
	s := seedContextGraph(t)

	ctx, err := s.MinimalContext("parseNote")
	require.NoError(t, err)
	assert.Empty(t, ctx.Dependencies)
	require.Len(t, ctx.DataStructures, 1)
	assert.Equal(t, "Note", ctx.DataStructures[0].Name)
}

func TestMinimalContext_Idempotent(t *testing.T) {
	s := seedContextGraph(t)

	first, err := s.MinimalContext("render")
	require.NoError(t, err)
	second, err := s.MinimalContext("render")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMinimalContext_UnknownFunction(t *testing.T) {
	s := seedContextGraph(t)
	_, err := s.MinimalContext("ghost")

	var unk *UnknownFunctionError
	require.ErrorAs(t, err, &unk)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
