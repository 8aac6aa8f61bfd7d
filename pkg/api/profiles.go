package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
	"chatsphere/pkg/profile"
	"chatsphere/pkg/store"
)

func registerAuth(r *mux.Router) {
	r.HandleFunc("/auth", authenticate).Methods(http.MethodPost)
}

func registerProfiles(r *mux.Router) {
	r.HandleFunc("/profile", getProfile).Methods(http.MethodGet)
	r.HandleFunc("/profile", updateProfile).Methods(http.MethodPut)
	r.HandleFunc("/subscriptions", subscribe).Methods(http.MethodPost)
	r.HandleFunc("/subscriptions/{id}", unsubscribe).Methods(http.MethodDelete)
}

type authResponse struct {
	Success bool   `json:"success"`
	IsAdmin bool   `json:"isAdmin"`
	Error   string `json:"error,omitempty"`
	User    *struct {
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"user,omitempty"`
}

// authenticate registers a display name for the caller's identity. The
// admin account name requires the configured password; success escalates
// the identity's role.
func authenticate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		writeJSON(w, authResponse{Success: false, Error: "name required"})
		return
	}
	identity := identityOf(r)

	if profile.IsAdminName(name) {
		if in.Password == "" {
			writeJSON(w, authResponse{Success: false, IsAdmin: true, Error: "ADMIN_PASSWORD_REQUIRED"})
			return
		}
		if !profile.VerifyAdminPassword(in.Password) {
			logger.Warn("admin_login_failed", "identity", identity)
			writeJSON(w, authResponse{Success: false, IsAdmin: true, Error: "INVALID_ADMIN_PASSWORD"})
			return
		}
		if _, _, err := profile.Touch(identity, name); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if err := profile.SetRole(identity, models.RoleAdmin); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		logger.AuditEvent("admin_login", "identity", identity)
		resp := authResponse{Success: true, IsAdmin: true}
		resp.User = &struct {
			Name string `json:"name"`
			Role string `json:"role"`
		}{Name: name, Role: models.RoleAdmin}
		writeJSON(w, resp)
		return
	}

	p, created, err := profile.Touch(identity, name)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if created {
		_ = profile.Award(identity, "first_message")
	}
	resp := authResponse{Success: true}
	resp.User = &struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}{Name: p.Name, Role: p.Role}
	writeJSON(w, resp)
}

func getProfile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p, err := store.GetProfile(identityOf(r))
	if err != nil {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

func updateProfile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Avatar string `json:"avatar"`
		Bio    string `json:"bio"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	p, err := profile.Update(identityOf(r), in.Avatar, in.Bio, in.Status)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, p)
}

// subscribe registers a push delivery target for the caller's identity.
func subscribe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if in.Endpoint == "" {
		http.Error(w, `{"error":"endpoint required"}`, http.StatusBadRequest)
		return
	}
	s := models.Subscription{
		ID:        uuid.NewString(),
		Identity:  identityOf(r),
		Endpoint:  in.Endpoint,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	s.Keys.P256dh = in.Keys.P256dh
	s.Keys.Auth = in.Keys.Auth
	if err := store.SaveSubscription(s); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"id": s.ID})
}

func unsubscribe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	if err := store.DeleteSubscription(identityOf(r), id); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
