package event_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/re-cinq/overstory/internal/event"
)

func openTestStore(t *testing.T) *event.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := event.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAssignsMonotonicID(t *testing.T) {
	store := openTestStore(t)

	a, err := store.Insert(event.StoredEvent{AgentName: "agent1", Type: event.TypeSpawn})
	require.NoError(t, err)
	b, err := store.Insert(event.StoredEvent{AgentName: "agent1", Type: event.TypeToolStart})
	require.NoError(t, err)

	require.Greater(t, b.ID, a.ID)
}

func TestGetByAgentFiltersAndOrders(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Insert(event.StoredEvent{AgentName: "agent1", Type: event.TypeSpawn})
	require.NoError(t, err)
	_, err = store.Insert(event.StoredEvent{AgentName: "agent2", Type: event.TypeSpawn})
	require.NoError(t, err)
	_, err = store.Insert(event.StoredEvent{AgentName: "agent1", Type: event.TypeToolStart})
	require.NoError(t, err)

	got, err := store.GetByAgent("agent1", event.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, event.TypeSpawn, got[0].Type)
	require.Equal(t, event.TypeToolStart, got[1].Type)
}

func TestFollowModeSinceID(t *testing.T) {
	store := openTestStore(t)
	first, err := store.Insert(event.StoredEvent{AgentName: "agent1", Type: event.TypeSpawn})
	require.NoError(t, err)
	_, err = store.Insert(event.StoredEvent{AgentName: "agent1", Type: event.TypeToolStart})
	require.NoError(t, err)

	got, err := store.GetTimeline(event.Filter{SinceID: first.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, event.TypeToolStart, got[0].Type)
}
