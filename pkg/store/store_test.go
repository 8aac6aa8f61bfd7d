package store

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"chatsphere/pkg/models"
)

func openTestStore(t *testing.T) {
	t.Helper()
	require.NoError(t, Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, Close()) })
}

func TestAppendAssignsOrderingFields(t *testing.T) {
	openTestStore(t)

	m := models.Message{ID: "m1", Name: "alice", Body: "hi", Type: models.KindUser}
	require.NoError(t, AppendMessage(&m))
	require.NotZero(t, m.TS)
	require.NotZero(t, m.Seq)

	got, raw, err := GetMessage("m1")
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Equal(t, "hi", got.Body)
	require.Equal(t, m.TS, got.TS)
}

func TestListMessagesKeepsInsertionOrder(t *testing.T) {
	openTestStore(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		m := models.Message{ID: id, Body: id, Type: models.KindUser}
		require.NoError(t, AppendMessage(&m))
	}

	msgs, err := ListMessages()
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		require.Equal(t, want, msgs[i].ID)
	}
}

func TestThreadAndReplyIndexes(t *testing.T) {
	openTestStore(t)

	root := models.Message{ID: "root", Body: "root", Type: models.KindUser}
	require.NoError(t, AppendMessage(&root))

	r1 := models.Message{ID: "r1", Body: "first", ThreadID: "root", ParentMessageID: "root"}
	r2 := models.Message{ID: "r2", Body: "second", ThreadID: "root", ParentMessageID: "root"}
	require.NoError(t, AppendMessage(&r1))
	require.NoError(t, AppendMessage(&r2))

	thread, err := ListThread("root")
	require.NoError(t, err)
	require.Len(t, thread, 3)
	require.Equal(t, "root", thread[0].ID, "thread root comes first")
	require.Equal(t, "r1", thread[1].ID)
	require.Equal(t, "r2", thread[2].ID)

	replies, err := ListReplies("root")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.Equal(t, "r1", replies[0].ID)
}

func TestSwapRejectsStaleRead(t *testing.T) {
	openTestStore(t)

	m := models.Message{ID: "m1", Body: "v1", Type: models.KindUser}
	require.NoError(t, AppendMessage(&m))

	cur, raw, err := GetMessage("m1")
	require.NoError(t, err)

	cur.Body = "v2"
	require.NoError(t, SwapMessage("m1", raw, cur))

	// the first raw snapshot is now stale
	cur.Body = "v3"
	err = SwapMessage("m1", raw, cur)
	require.ErrorIs(t, err, ErrModified)

	got, _, err := GetMessage("m1")
	require.NoError(t, err)
	require.Equal(t, "v2", got.Body)
}

func TestSwapKeepsFeedPosition(t *testing.T) {
	openTestStore(t)

	a := models.Message{ID: "a", Body: "a", Type: models.KindUser}
	b := models.Message{ID: "b", Body: "b", Type: models.KindUser}
	require.NoError(t, AppendMessage(&a))
	require.NoError(t, AppendMessage(&b))

	got, raw, err := GetMessage("a")
	require.NoError(t, err)
	got.Body = "a-edited"
	require.NoError(t, SwapMessage("a", raw, got))

	msgs, err := ListMessages()
	require.NoError(t, err)
	require.Equal(t, "a", msgs[0].ID, "updates must not reorder the feed")
	require.Equal(t, "a-edited", msgs[0].Body)
	require.Equal(t, "b", msgs[1].ID)
}

func TestDeleteLeavesRepliesDangling(t *testing.T) {
	openTestStore(t)

	parent := models.Message{ID: "p", Body: "parent", Type: models.KindUser}
	require.NoError(t, AppendMessage(&parent))
	reply := models.Message{ID: "r", Body: "reply", ThreadID: "p", ParentMessageID: "p"}
	require.NoError(t, AppendMessage(&reply))

	require.NoError(t, DeleteMessage("p"))

	_, _, err := GetMessage("p")
	require.ErrorIs(t, err, ErrNotFound)

	replies, err := ListReplies("p")
	require.NoError(t, err)
	require.Len(t, replies, 1, "replies survive their parent's deletion")
	require.Equal(t, "r", replies[0].ID)

	thread, err := ListThread("p")
	require.NoError(t, err)
	require.Len(t, thread, 1, "thread listing skips the deleted root")
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	openTestStore(t)
	require.ErrorIs(t, DeleteMessage("ghost"), ErrNotFound)
}

func TestCountMessages(t *testing.T) {
	openTestStore(t)

	n, err := CountMessages()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	for _, id := range []string{"a", "b", "c"} {
		m := models.Message{ID: id, Body: id}
		require.NoError(t, AppendMessage(&m))
	}
	require.NoError(t, DeleteMessage("b"))

	n, err = CountMessages()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestOnMutateFiresOnEveryMutation(t *testing.T) {
	openTestStore(t)

	var fired atomic.Int64
	OnMutate(func() { fired.Add(1) })
	t.Cleanup(func() { OnMutate(func() {}) })

	m := models.Message{ID: "m1", Body: "hi"}
	require.NoError(t, AppendMessage(&m))

	got, raw, err := GetMessage("m1")
	require.NoError(t, err)
	got.Body = "edited"
	require.NoError(t, SwapMessage("m1", raw, got))
	require.NoError(t, DeleteMessage("m1"))

	require.Equal(t, int64(3), fired.Load())
}

func TestProfileMutateUpsertsWithDefaults(t *testing.T) {
	openTestStore(t)

	_, err := GetProfile("10.0.0.7")
	require.ErrorIs(t, err, ErrNotFound)

	p, err := MutateProfile("10.0.0.7", func(p *models.UserProfile) {
		p.Name = "alice"
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, p.Role, "fresh profiles default to the lowest role")
	require.Equal(t, "alice", p.Name)

	p, err = MutateProfile("10.0.0.7", func(p *models.UserProfile) {
		p.Points = 10
	})
	require.NoError(t, err)
	require.Equal(t, "alice", p.Name, "upsert preserves prior fields")
	require.Equal(t, 10, p.Points)

	all, err := ListProfiles()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSubscriptionRoundTrip(t *testing.T) {
	openTestStore(t)

	s := models.Subscription{ID: "s1", Identity: "alice", Endpoint: "https://push/1"}
	s.Keys.P256dh = "pk"
	s.Keys.Auth = "ak"
	require.NoError(t, SaveSubscription(s))

	s2 := models.Subscription{ID: "s2", Identity: "alice", Endpoint: "https://push/2"}
	require.NoError(t, SaveSubscription(s2))
	other := models.Subscription{ID: "s3", Identity: "bob", Endpoint: "https://push/3"}
	require.NoError(t, SaveSubscription(other))

	subs, err := ListSubscriptions("alice")
	require.NoError(t, err)
	require.Len(t, subs, 2)

	require.NoError(t, DeleteSubscription("alice", "s1"))
	subs, err = ListSubscriptions("alice")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "s2", subs[0].ID)

	// deleting an absent target is not an error
	require.NoError(t, DeleteSubscription("alice", "ghost"))
}
