package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArchiveLastNRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "Archive.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := store.Insert(ctx, LogLine{
			UserID: "u1", Server: "libera", Channel: "#room",
			Time: int64(1000 + i), Nickname: "alice", Type: LogPrivmsg,
			Message: "msg",
		})
		require.NoError(t, err)
	}

	lines, err := store.LastN(ctx, "u1", "libera", "#room", 1004, true, 3)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	for i := 0; i < len(lines)-1; i++ {
		require.Less(t, lines[i].Time, lines[i+1].Time)
	}
	require.Equal(t, int64(1002), lines[0].Time)
	require.Equal(t, int64(1004), lines[2].Time)
}

func TestArchiveRangeOrdersAscending(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "Archive.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(ctx, LogLine{
			UserID: "u1", Server: "s", Channel: "#c", Time: int64(i), Type: LogJoin,
		}))
	}

	lines, err := store.Range(ctx, "u1", "s", "#c", 0, 100)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.True(t, lines[0].Idx < lines[1].Idx && lines[1].Idx < lines[2].Idx)
}
