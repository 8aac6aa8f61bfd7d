package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatsphere/pkg/cache"
	"chatsphere/pkg/models"
	"chatsphere/pkg/profile"
	"chatsphere/pkg/security"
	"chatsphere/pkg/store"
)

const adminPassword = "s3cret"

// newTestServer wires store, cache and middleware the way main does.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	c := cache.New(100, time.Minute, nil)
	store.OnMutate(c.InvalidateAll)
	t.Cleanup(func() { store.OnMutate(func() {}) })

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	profile.SetAdminCredentials("admin", string(hash))
	t.Cleanup(func() { profile.SetAdminCredentials("", "") })

	sec := security.Middleware(security.SecConfig{
		AllowedOrigins: []string{"*"},
		RPS:            1000,
		Burst:          1000,
	})
	srv := httptest.NewServer(sec(Handler(c)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	return res, data
}

func postMessage(t *testing.T, srv *httptest.Server, identity, name, text string) models.Message {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/messages",
		map[string]any{"name": name, "message": text},
		map[string]string{"X-Identity": identity})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var m models.Message
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func listFeed(t *testing.T, srv *httptest.Server) []models.Message {
	t.Helper()
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/messages", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	return out.Messages
}

func TestMessageLifecycle(t *testing.T) {
	srv := newTestServer(t)

	m := postMessage(t, srv, "alice-id", "alice", "hello world")
	require.NotEmpty(t, m.ID)
	require.Equal(t, "hello world", m.Body)

	feed := listFeed(t, srv)
	require.Len(t, feed, 1)
	require.Equal(t, m.ID, feed[0].ID)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+m.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got models.Message
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "alice", got.Name)

	// deletion needs the admin password
	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/messages/"+m.ID, nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/messages/"+m.ID, nil,
		map[string]string{"X-Admin-Password": adminPassword})
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+m.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestEmptyMessageRejected(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/messages",
		map[string]any{"name": "alice", "message": ""}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/messages",
		map[string]any{"message": "no name"}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestThreadAndReplies(t *testing.T) {
	srv := newTestServer(t)

	root := postMessage(t, srv, "alice-id", "alice", "root")
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/messages",
		map[string]any{"name": "bob", "message": "reply", "threadId": root.ID, "parentMessageId": root.ID},
		map[string]string{"X-Identity": "bob-id"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+root.ID+"/thread", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Messages, 2)
	require.Equal(t, root.ID, out.Messages[0].ID)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/messages/"+root.ID+"/replies", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Messages, 1)
	require.Equal(t, "reply", out.Messages[0].Body)
}

func TestReactionsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	m := postMessage(t, srv, "alice-id", "alice", "react to me")

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/messages/"+m.ID+"/reactions",
		map[string]any{"emoji": "👍", "voterId": "bob"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	// duplicate is a success no-op
	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/messages/"+m.ID+"/reactions",
		map[string]any{"emoji": "👍", "voterId": "bob"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	feed := listFeed(t, srv)
	require.Equal(t, []string{"bob"}, feed[0].Reactions["👍"])

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/messages/"+m.ID+"/reactions/👍?voter=bob", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	feed = listFeed(t, srv)
	require.Empty(t, feed[0].Reactions)

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/messages/ghost/reactions",
		map[string]any{"emoji": "👍", "voterId": "bob"}, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPollFlow(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/polls",
		map[string]any{"name": "alice", "question": "red or blue?", "options": []string{"red", "blue"}},
		map[string]string{"X-Identity": "alice-id"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var poll models.Message
	require.NoError(t, json.Unmarshal(data, &poll))
	require.Len(t, poll.Options, 2)

	vote := func(optionID, voter string) (*http.Response, []byte) {
		return doJSON(t, http.MethodPost, srv.URL+"/v1/polls/"+poll.ID+"/vote",
			map[string]any{"optionId": optionID, "voterId": voter}, nil)
	}

	res, data = vote(poll.Options[0].ID, "bob")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var after models.Message
	require.NoError(t, json.Unmarshal(data, &after))
	require.Equal(t, 1, after.Options[0].Votes)
	require.Equal(t, 1, after.TotalVotes)

	res, _ = vote(poll.Options[1].ID, "bob")
	require.Equal(t, http.StatusConflict, res.StatusCode, "single-choice second vote is rejected")

	res, _ = vote("no-such-option", "carol")
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/polls",
		map[string]any{"name": "alice", "question": "", "options": []string{"a", "b"}}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAnonymousPollHidesVoters(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/polls",
		map[string]any{
			"name": "alice", "question": "secret ballot?",
			"options":  []string{"yes", "no"},
			"settings": map[string]any{"anonymous": true},
		}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var poll models.Message
	require.NoError(t, json.Unmarshal(data, &poll))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/polls/"+poll.ID+"/vote",
		map[string]any{"optionId": poll.Options[0].ID, "voterId": "bob"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var after models.Message
	require.NoError(t, json.Unmarshal(data, &after))
	require.Equal(t, 1, after.Options[0].Votes)
	require.Empty(t, after.Options[0].Voters, "vote response hides voters on anonymous polls")

	feed := listFeed(t, srv)
	require.Len(t, feed, 1)
	require.Empty(t, feed[0].Options[0].Voters, "feed hides voters on anonymous polls")
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)

	type authResp struct {
		Success bool   `json:"success"`
		IsAdmin bool   `json:"isAdmin"`
		Error   string `json:"error"`
		User    *struct {
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"user"`
	}
	auth := func(body map[string]any, identity string) authResp {
		res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/auth", body,
			map[string]string{"X-Identity": identity})
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		var out authResp
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	}

	got := auth(map[string]any{"name": "alice"}, "alice-id")
	require.True(t, got.Success)
	require.False(t, got.IsAdmin)
	require.Equal(t, models.RoleStudent, got.User.Role)

	got = auth(map[string]any{"name": "admin"}, "admin-id")
	require.False(t, got.Success)
	require.Equal(t, "ADMIN_PASSWORD_REQUIRED", got.Error)

	got = auth(map[string]any{"name": "admin", "password": "wrong"}, "admin-id")
	require.False(t, got.Success)
	require.Equal(t, "INVALID_ADMIN_PASSWORD", got.Error)

	got = auth(map[string]any{"name": "Admin", "password": adminPassword}, "admin-id")
	require.True(t, got.Success)
	require.True(t, got.IsAdmin)
	require.Equal(t, models.RoleAdmin, got.User.Role)
}

func TestBlockedIdentityRejected(t *testing.T) {
	srv := newTestServer(t)

	postMessage(t, srv, "troll-id", "troll", "first post")

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/users/troll-id/block",
		map[string]any{"blocked": true},
		map[string]string{"X-Admin-Password": adminPassword})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/messages",
		map[string]any{"name": "troll", "message": "again"},
		map[string]string{"X-Identity": "troll-id"})
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Contains(t, string(data), "ACCESS_DENIED")

	// reads stay open
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/messages", nil,
		map[string]string{"X-Identity": "troll-id"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	// unblock restores posting
	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/admin/users/troll-id/block",
		map[string]any{"blocked": false},
		map[string]string{"X-Admin-Password": adminPassword})
	require.Equal(t, http.StatusOK, res.StatusCode)
	postMessage(t, srv, "troll-id", "troll", "reformed")
}

func TestAdminStats(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/admin/stats", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	postMessage(t, srv, "alice-id", "alice", "one")
	postMessage(t, srv, "bob-id", "bob", "two")

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/admin/stats", nil,
		map[string]string{"X-Admin-Password": adminPassword})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var stats struct {
		TotalMessages int `json:"totalMessages"`
		TotalUsers    int `json:"totalUsers"`
		ActiveUsers   int `json:"activeUsers"`
		MessagesToday int `json:"messagesToday"`
	}
	require.NoError(t, json.Unmarshal(data, &stats))
	require.Equal(t, 2, stats.TotalMessages)
	require.Equal(t, 2, stats.TotalUsers)
	require.Equal(t, 2, stats.ActiveUsers)
	require.Equal(t, 2, stats.MessagesToday)
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)

	postMessage(t, srv, "alice-id", "alice", "golang rocks")
	postMessage(t, srv, "bob-id", "bob", "python too")
	postMessage(t, srv, "alice-id", "alice", "more golang")

	search := func(query string) []models.Message {
		res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/search?"+query, nil, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		var out struct {
			Results []models.Message `json:"results"`
		}
		require.NoError(t, json.Unmarshal(data, &out))
		return out.Results
	}

	got := search("q=golang")
	require.Len(t, got, 2)
	require.Equal(t, "more golang", got[0].Body, "results come newest first")

	got = search("q=GOLANG&user=alice")
	require.Len(t, got, 2, "matching is case-insensitive")

	got = search("user=bob")
	require.Len(t, got, 1)
	require.Equal(t, "python too", got[0].Body)

	got = search("q=nothing-matches")
	require.Empty(t, got)
}

func TestFeedReflectsMutationsImmediately(t *testing.T) {
	srv := newTestServer(t)

	postMessage(t, srv, "alice-id", "alice", "first")
	require.Len(t, listFeed(t, srv), 1) // fills the cache

	postMessage(t, srv, "alice-id", "alice", "second")
	feed := listFeed(t, srv)
	require.Len(t, feed, 2, "mutations must invalidate the cached snapshot")
	require.Equal(t, "second", feed[1].Body)
}

func TestProfileEndpoints(t *testing.T) {
	srv := newTestServer(t)

	hdr := map[string]string{"X-Identity": "alice-id"}
	postMessage(t, srv, "alice-id", "alice", "creates the profile")

	res, data := doJSON(t, http.MethodPut, srv.URL+"/v1/profile",
		map[string]any{"avatar": "cat.png", "bio": "hi", "status": "online"}, hdr)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var p models.UserProfile
	require.NoError(t, json.Unmarshal(data, &p))
	require.Equal(t, "cat.png", p.Avatar)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/profile", nil, hdr)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(data, &p))
	require.Equal(t, "alice", p.Name)
	require.Equal(t, "online", p.Status)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/profile", nil,
		map[string]string{"X-Identity": "stranger"})
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSubscriptionEndpoints(t *testing.T) {
	srv := newTestServer(t)
	hdr := map[string]string{"X-Identity": "alice-id"}

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/subscriptions",
		map[string]any{
			"endpoint": "https://push.example/abc",
			"keys":     map[string]string{"p256dh": "pk", "auth": "ak"},
		}, hdr)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out map[string]string
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotEmpty(t, out["id"])

	subs, err := store.ListSubscriptions("alice-id")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/subscriptions/"+out["id"], nil, hdr)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	subs, err = store.ListSubscriptions("alice-id")
	require.NoError(t, err)
	require.Empty(t, subs)

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/subscriptions",
		map[string]any{"endpoint": ""}, hdr)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://chat.example.com")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "https://chat.example.com", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(data))
}
