package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmynk/equalsplit/internal/events"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/storage"
	"github.com/mmynk/equalsplit/internal/storage/memory"
)

// stepClock returns a fixed start time that advances one second per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker unavailable")
}

type testEnv struct {
	store    storage.Store
	ledger   *LedgerService
	groups   *GroupService
	recorder *events.Recorder
}

// setupTestEnv wires both services to one in-memory store and registers
// alice, bob and charlie.
func setupTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	store := memory.New()
	t.Cleanup(func() { store.Close() })

	recorder := &events.Recorder{}
	clock := &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithPublisher(recorder), WithClock(clock.Now)}, opts...)

	env := &testEnv{
		store:    store,
		ledger:   NewLedgerService(store, opts...),
		groups:   NewGroupService(store, opts...),
		recorder: recorder,
	}

	for _, u := range []RegisterUserRequest{
		{ID: "alice", Name: "Alice", Email: "alice@example.com"},
		{ID: "bob", Name: "Bob", Email: "bob@example.com"},
		{ID: "charlie", Name: "Charlie", Email: "charlie@example.com"},
	} {
		_, err := env.groups.RegisterUser(context.Background(), u)
		require.NoError(t, err)
	}
	return env
}

// newGroup creates a group owned by the first user with the others added.
func (e *testEnv) newGroup(t *testing.T, name string, owner string, others ...string) *models.Group {
	t.Helper()
	ctx := context.Background()

	group, err := e.groups.CreateGroup(ctx, CreateGroupRequest{Name: name, Requester: owner})
	require.NoError(t, err)

	for _, id := range others {
		u, err := e.store.GetUser(ctx, id)
		require.NoError(t, err)
		_, err = e.groups.AddMember(ctx, AddMemberRequest{GroupID: group.ID, Email: u.Email, Requester: owner})
		require.NoError(t, err)
	}

	group, err = e.store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	return group
}
