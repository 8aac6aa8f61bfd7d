package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
	"chatsphere/pkg/mutate"
	"chatsphere/pkg/profile"
	"chatsphere/pkg/security"
	"chatsphere/pkg/store"
)

const feedCacheKey = "all_messages"

func registerMessages(r *mux.Router) {
	r.HandleFunc("/messages", createMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages", listMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", getMessage).Methods(http.MethodGet)
	r.Handle("/messages/{id}", security.RequireAdmin(http.HandlerFunc(deleteMessage))).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/thread", listThread).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/replies", listReplies).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/reactions", addReaction).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/reactions/{emoji}", removeReaction).Methods(http.MethodDelete)
	r.HandleFunc("/search", searchMessages).Methods(http.MethodGet)
}

func createMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Name            string              `json:"name"`
		Message         string              `json:"message"`
		IsAdmin         bool                `json:"isAdmin"`
		ThreadID        string              `json:"threadId"`
		ParentMessageID string              `json:"parentMessageId"`
		Attachments     []models.Attachment `json:"attachments"`
		VoiceNote       *models.VoiceNote   `json:"voiceNote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		http.Error(w, `{"error":"name required"}`, http.StatusBadRequest)
		return
	}
	kind := models.KindUser
	if in.IsAdmin {
		kind = models.KindAdmin
	}
	identity := identityOf(r)
	m, err := mutate.CreateMessage(mutate.CreateInput{
		Name:            strings.TrimSpace(in.Name),
		Body:            in.Message,
		Type:            kind,
		Identity:        identity,
		ThreadID:        in.ThreadID,
		ParentMessageID: in.ParentMessageID,
		Attachments:     in.Attachments,
		VoiceNote:       in.VoiceNote,
	})
	if err != nil {
		writeMutateErr(w, err)
		return
	}
	_, _, _ = profile.Touch(identity, strings.TrimSpace(in.Name))
	logger.Info("message_created", "id", m.ID, "identity", identity)
	writeJSON(w, m)
}

// listMessages serves the full ordered feed: the polling sync protocol.
// Cache hits skip the store entirely; a cache fault degrades to a rebuild,
// never an error.
func listMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	msgs, ok := feedCache.Get(feedCacheKey)
	if !ok {
		var err error
		msgs, err = store.ListMessages()
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		feedCache.Put(feedCacheKey, msgs)
	}
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sanitized())
	}
	logger.Debug("messages_list", "count", len(out))
	writeJSON(w, struct {
		Messages []models.Message `json:"messages"`
	}{Messages: out})
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	m, _, err := store.GetMessage(id)
	if err != nil {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, m.Sanitized())
}

func deleteMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	if err := mutate.DeleteMessage(id); err != nil {
		writeMutateErr(w, err)
		return
	}
	logger.AuditEvent("message_deleted", "id", id, "admin", identityOf(r))
	w.WriteHeader(http.StatusNoContent)
}

func listThread(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	msgs, err := store.ListThread(id)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sanitized())
	}
	writeJSON(w, struct {
		Messages []models.Message `json:"messages"`
	}{Messages: out})
}

func listReplies(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	msgs, err := store.ListReplies(id)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sanitized())
	}
	writeJSON(w, struct {
		Messages []models.Message `json:"messages"`
	}{Messages: out})
}

func addReaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	var in struct {
		Emoji   string `json:"emoji"`
		VoterID string `json:"voterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	voter := in.VoterID
	if voter == "" {
		voter = identityOf(r)
	}
	if in.Emoji == "" || voter == "" {
		http.Error(w, `{"error":"missing emoji or voter"}`, http.StatusBadRequest)
		return
	}
	if err := mutate.AddReaction(id, in.Emoji, voter); err != nil {
		writeMutateErr(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func removeReaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)
	voter := r.URL.Query().Get("voter")
	if voter == "" {
		voter = identityOf(r)
	}
	if err := mutate.RemoveReaction(vars["id"], vars["emoji"], voter); err != nil {
		writeMutateErr(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// searchMessages is a thin substring filter over the feed; ranking is out
// of scope.
func searchMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	q := strings.ToLower(r.URL.Query().Get("q"))
	user := strings.ToLower(r.URL.Query().Get("user"))
	from := parseUnixNano(r.URL.Query().Get("from"))
	to := parseUnixNano(r.URL.Query().Get("to"))

	msgs, err := store.ListMessages()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	out := make([]models.Message, 0)
	// newest first, capped at 100 results
	for i := len(msgs) - 1; i >= 0 && len(out) < 100; i-- {
		m := msgs[i]
		if q != "" && !strings.Contains(strings.ToLower(m.Body), q) {
			continue
		}
		if user != "" && !strings.Contains(strings.ToLower(m.Name), user) {
			continue
		}
		if from > 0 && m.TS < from {
			continue
		}
		if to > 0 && m.TS > to {
			continue
		}
		out = append(out, m.Sanitized())
	}
	writeJSON(w, struct {
		Results []models.Message `json:"results"`
		Query   string           `json:"query"`
	}{Results: out, Query: r.URL.Query().Get("q")})
}

func parseUnixNano(s string) int64 {
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().UnixNano()
	}
	return 0
}
