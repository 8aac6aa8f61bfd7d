package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chatsphere/pkg/profile"
	"chatsphere/pkg/security"
	"chatsphere/pkg/store"
)

func registerAdmin(r *mux.Router) {
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(security.RequireAdmin)
	admin.HandleFunc("/stats", adminStats).Methods(http.MethodGet)
	admin.HandleFunc("/users/{identity}/block", blockUser).Methods(http.MethodPost)
}

func adminStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	total, err := store.CountMessages()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	profiles, err := store.ListProfiles()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	now := time.Now().UTC()
	dayAgo := now.Add(-24 * time.Hour).UnixNano()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).UnixNano()

	active := 0
	for _, p := range profiles {
		if p.LastSeen >= dayAgo {
			active++
		}
	}
	msgs, err := store.ListMessages()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	today := 0
	for _, m := range msgs {
		if m.TS >= midnight {
			today++
		}
	}
	writeJSON(w, struct {
		TotalMessages int `json:"totalMessages"`
		TotalUsers    int `json:"totalUsers"`
		ActiveUsers   int `json:"activeUsers"`
		MessagesToday int `json:"messagesToday"`
	}{TotalMessages: total, TotalUsers: len(profiles), ActiveUsers: active, MessagesToday: today})
}

func blockUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	identity := mux.Vars(r)["identity"]
	var in struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if err := profile.SetBlocked(identity, in.Blocked); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}
