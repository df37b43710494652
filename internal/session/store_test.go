package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use different DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	require.NoError(t, client.FlushDB(ctx).Err())
	return client
}

func cleanupTestRedis(client *redis.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = client.FlushDB(ctx).Err()
	_ = client.Close()
}

func TestStore_AppendAndRecent(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	store, err := NewStore(client)
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "analyst@obex.io", Turn{Role: "user", Content: "show volume trend"}))
	require.NoError(t, store.Append(ctx, "analyst@obex.io", Turn{Role: "assistant", Content: "Here is the trend."}))

	turns, err := store.Recent(ctx, "analyst@obex.io", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "show volume trend", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.NotZero(t, turns[0].At)
}

func TestStore_TrimsToMaxTurns(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	store, err := NewStore(client)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < MaxTurns+5; i++ {
		require.NoError(t, store.Append(ctx, "analyst", Turn{Role: "user", Content: fmt.Sprintf("q%d", i)}))
	}

	turns, err := store.Recent(ctx, "analyst", 0)
	require.NoError(t, err)
	assert.Len(t, turns, MaxTurns)
	// oldest entries dropped, newest kept
	assert.Equal(t, fmt.Sprintf("q%d", MaxTurns+4), turns[len(turns)-1].Content)
	assert.Equal(t, "q5", turns[0].Content)
}

func TestStore_EmptyHistory(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	store, err := NewStore(client)
	require.NoError(t, err)

	turns, err := store.Recent(context.Background(), "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestStore_Clear(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	store, err := NewStore(client)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "analyst", Turn{Role: "user", Content: "hi"}))
	require.NoError(t, store.Clear(ctx, "analyst"))

	turns, err := store.Recent(ctx, "analyst", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestStore_RejectsBadUsernames(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	store, err := NewStore(client)
	require.NoError(t, err)

	assert.Error(t, store.Append(context.Background(), "bad user!", Turn{Role: "user", Content: "x"}))
	_, err = store.Recent(context.Background(), "", 5)
	assert.Error(t, err)
}

func TestCompact_ElidesSQLAndData(t *testing.T) {
	turns := []Turn{
		{Role: "user", Content: "show users for partner 100"},
		{Role: "assistant", Content: "Found 42 users.\n```sql\nSELECT * FROM user_profile_360\n```\n[{...}]"},
		{Role: "user", Content: "and their trading volume"},
	}

	out := Compact(turns, 3)

	assert.Contains(t, out, "[User]: show users for partner 100")
	assert.Contains(t, out, "[AI]: Found 42 users. [Data/SQL Output]")
	assert.NotContains(t, out, "SELECT * FROM")
	assert.Contains(t, out, "[User]: and their trading volume")
}
