package directory

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs the same contract against any Directory.
func exercise(t *testing.T, d Directory) {
	ctx := context.Background()

	room, err := d.Create(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, room.ID, 12)
	assert.Equal(t, "owner-1", room.Owner)
	assert.Equal(t, []string{"owner-1"}, room.Participants)
	assert.Equal(t, DefaultLanguage, room.Language)

	ok, err := d.Exists(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := d.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	got, err = d.AddParticipant(ctx, room.ID, "guest-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner-1", "guest-2"}, got.Participants)

	got, err = d.AddParticipant(ctx, room.ID, "guest-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner-1", "guest-2"}, got.Participants, "adding twice is a no-op")

	_, err = d.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.AddParticipant(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = d.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDirectory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	room, err := m.Create(context.Background(), "o")
	require.NoError(t, err)
	room.Participants[0] = "tampered"

	got, err := m.Get(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"o"}, got.Participants)
}

func TestPostgresDirectory(t *testing.T) {
	url := os.Getenv("DEVSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DEVSYNC_TEST_DATABASE_URL not set")
	}
	p, err := Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	exercise(t, p)
}

func TestNewRoomIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRoomID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
