package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatsphere/pkg/models"
	"chatsphere/pkg/mutate"
	"chatsphere/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, store.Close()) })
}

func TestRunOnceClosesExpiredPolls(t *testing.T) {
	openTestStore(t)

	past := time.Now().UTC().Add(-time.Minute).UnixNano()
	future := time.Now().UTC().Add(time.Hour).UnixNano()

	expired, err := mutate.CreatePoll("alice", "a", "done?", []string{"yes", "no"}, models.PollSettings{EndsAt: past})
	require.NoError(t, err)
	open, err := mutate.CreatePoll("alice", "a", "later?", []string{"yes", "no"}, models.PollSettings{EndsAt: future})
	require.NoError(t, err)
	endless, err := mutate.CreatePoll("alice", "a", "forever?", []string{"yes", "no"}, models.PollSettings{})
	require.NoError(t, err)
	msg, err := mutate.CreateMessage(mutate.CreateInput{Name: "alice", Body: "not a poll"})
	require.NoError(t, err)

	require.NoError(t, RunOnce())

	got, _, err := store.GetMessage(expired.ID)
	require.NoError(t, err)
	require.True(t, got.Closed)

	got, _, err = store.GetMessage(open.ID)
	require.NoError(t, err)
	require.False(t, got.Closed)

	got, _, err = store.GetMessage(endless.ID)
	require.NoError(t, err)
	require.False(t, got.Closed, "polls without a deadline never expire")

	got, _, err = store.GetMessage(msg.ID)
	require.NoError(t, err)
	require.False(t, got.Closed)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	openTestStore(t)

	past := time.Now().UTC().Add(-time.Minute).UnixNano()
	p, err := mutate.CreatePoll("alice", "a", "done?", []string{"yes", "no"}, models.PollSettings{EndsAt: past})
	require.NoError(t, err)

	require.NoError(t, RunOnce())
	require.NoError(t, RunOnce())

	got, _, err := store.GetMessage(p.ID)
	require.NoError(t, err)
	require.True(t, got.Closed)
}

func TestStartRejectsInvalidCron(t *testing.T) {
	_, err := Start(context.Background(), "not a cron")
	require.Error(t, err)
}

func TestStartAndCancel(t *testing.T) {
	openTestStore(t)

	cancel, err := Start(context.Background(), "")
	require.NoError(t, err)
	cancel()
}
