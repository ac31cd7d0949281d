package adapter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/storyteller/internal/domain"
	"github.com/mouse-blink/storyteller/internal/logging"
	m "github.com/mouse-blink/storyteller/internal/model"
)

func openTestArchive(t *testing.T) SessionArchive {
	t.Helper()

	archive, err := OpenSessionArchive(filepath.Join(t.TempDir(), "nested", "sessions.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	return archive
}

func testSnapshot(id string, started time.Time) m.SessionSnapshot {
	mainNode := &m.CallGraphNode{ID: "main_0", Name: "main"}
	helper := &m.CallGraphNode{ID: "helper_1", Name: "helper", Parent: mainNode}
	mainNode.Children = []*m.CallGraphNode{helper}

	return m.SessionSnapshot{
		Session: m.SessionInfo{ID: id, Name: "node", StartedAt: started},
		EndedAt: started.Add(2 * time.Second),
		CallGraph: m.CallGraph{
			RootNodes: []*m.CallGraphNode{mainNode},
			Nodes:     []*m.CallGraphNode{mainNode, helper},
			AllCalls: []m.FunctionCall{
				{ID: "main_0", FunctionName: "main", Parameters: []any{}, StartTime: started},
				{ID: "helper_1", FunctionName: "helper", Parameters: []any{}, StartTime: started, CallerFunction: "main", CallDepth: 1},
			},
		},
		SideEffects: m.SideEffectSummary{
			TotalEffects:  3,
			EffectsByType: map[m.SideEffectKind]int{m.EffectConsole: 3},
		},
		Variables: map[string]m.VariableHistory{
			"count": {Variable: "count", States: []m.VariableState{{Name: "count", Value: "1", Type: "number", Scope: m.ScopeDebugSession}}},
		},
	}
}

func TestSessionArchive_SaveAndLoad(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, archive.Save(ctx, testSnapshot("s-1", started)))

	snapshot, err := archive.Load(ctx, "s-1")
	require.NoError(t, err)

	assert.Equal(t, "node", snapshot.Session.Name)
	assert.True(t, snapshot.Session.StartedAt.Equal(started))
	assert.Len(t, snapshot.CallGraph.AllCalls, 2)
	assert.Equal(t, 3, snapshot.SideEffects.EffectsByType[m.EffectConsole])
	assert.Equal(t, "1", snapshot.Variables["count"].States[0].Value)

	root, ok := snapshot.CallGraph.Root("main")
	require.True(t, ok)
	assert.Equal(t, []string{"helper"}, root.ChildNames())
}

func TestSessionArchive_List(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	records, err := archive.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, archive.Save(ctx, testSnapshot("older", t0)))
	require.NoError(t, archive.Save(ctx, testSnapshot("newer", t0.Add(time.Hour))))

	records, err = archive.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "newer", records[0].ID)
	assert.Equal(t, "older", records[1].ID)
	assert.Equal(t, 2, records[1].TotalCalls)
	assert.Equal(t, 3, records[1].TotalEffects)
	assert.True(t, records[1].EndedAt.Equal(t0.Add(2*time.Second)))
}

func TestSessionArchive_SaveReplacesExisting(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	snapshot := testSnapshot("s-1", time.Now())
	require.NoError(t, archive.Save(ctx, snapshot))

	snapshot.SideEffects.TotalEffects = 7
	require.NoError(t, archive.Save(ctx, snapshot))

	records, err := archive.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 7, records[0].TotalEffects)
}

func TestSessionArchive_LoadUnknown(t *testing.T) {
	archive := openTestArchive(t)

	_, err := archive.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResultNotFound)
}

func TestSessionArchive_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	first, err := OpenSessionArchive(path, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, testSnapshot("kept", time.Now())))
	require.NoError(t, first.Close())

	second, err := OpenSessionArchive(path, logging.Discard())
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	records, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].ID)
}
