package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"chatsphere/pkg/cache"
	"chatsphere/pkg/mutate"
	"chatsphere/pkg/security"
)

// feedCache is the read cache serving poll requests; installed by Handler.
var feedCache *cache.Cache

// Handler builds the HTTP API. The cache is constructed by the caller and
// shared with the store's invalidation hook.
func Handler(c *cache.Cache) http.Handler {
	feedCache = c
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	v1 := r.PathPrefix("/v1").Subrouter()
	registerAuth(v1)
	registerMessages(v1)
	registerPolls(v1)
	registerProfiles(v1)
	registerAdmin(v1)
	return r
}

// writeMutateErr maps the mutation error taxonomy onto HTTP statuses.
func writeMutateErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mutate.ErrNotFound):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case errors.Is(err, mutate.ErrOptionNotFound):
		http.Error(w, `{"error":"option not found"}`, http.StatusNotFound)
	case errors.Is(err, mutate.ErrAlreadyVoted):
		http.Error(w, `{"error":"already voted"}`, http.StatusConflict)
	case errors.Is(err, mutate.ErrPollClosed):
		http.Error(w, `{"error":"poll closed"}`, http.StatusConflict)
	case errors.Is(err, mutate.ErrContentRequired):
		http.Error(w, `{"error":"message content required"}`, http.StatusBadRequest)
	case errors.Is(err, mutate.ErrBlocked):
		http.Error(w, `{"error":"ACCESS_DENIED"}`, http.StatusForbidden)
	case errors.Is(err, mutate.ErrConflict):
		http.Error(w, `{"error":"concurrent update, retry"}`, http.StatusServiceUnavailable)
	default:
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func identityOf(r *http.Request) string { return security.Identity(r) }
