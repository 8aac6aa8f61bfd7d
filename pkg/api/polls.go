package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
	"chatsphere/pkg/mutate"
)

func registerPolls(r *mux.Router) {
	r.HandleFunc("/polls", createPoll).Methods(http.MethodPost)
	r.HandleFunc("/polls/{id}/vote", votePoll).Methods(http.MethodPost)
}

func createPoll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Name     string              `json:"name"`
		Question string              `json:"question"`
		Options  []string            `json:"options"`
		Settings models.PollSettings `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	poll, err := mutate.CreatePoll(strings.TrimSpace(in.Name), identityOf(r), in.Question, in.Options, in.Settings)
	if err != nil {
		writeMutateErr(w, err)
		return
	}
	logger.Info("poll_created", "id", poll.ID, "options", len(poll.Options))
	writeJSON(w, poll)
}

func votePoll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	var in struct {
		OptionID string `json:"optionId"`
		VoterID  string `json:"voterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	voter := in.VoterID
	if voter == "" {
		voter = identityOf(r)
	}
	if in.OptionID == "" || voter == "" {
		http.Error(w, `{"error":"missing optionId or voter"}`, http.StatusBadRequest)
		return
	}
	poll, err := mutate.Vote(id, in.OptionID, voter)
	if err != nil {
		writeMutateErr(w, err)
		return
	}
	writeJSON(w, poll.Sanitized())
}
