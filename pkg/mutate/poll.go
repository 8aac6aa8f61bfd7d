package mutate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
	"chatsphere/pkg/store"
	"chatsphere/pkg/telemetry"
)

// CreatePoll stores a poll as a feed message of kind poll. Options get fresh
// ids and zeroed counters.
func CreatePoll(name, identity, question string, optionTexts []string, settings models.PollSettings) (models.Message, error) {
	if question == "" {
		return models.Message{}, ErrContentRequired
	}
	if len(optionTexts) < 2 {
		return models.Message{}, fmt.Errorf("poll needs at least two options: %w", ErrContentRequired)
	}
	opts := make([]models.PollOption, 0, len(optionTexts))
	for _, t := range optionTexts {
		opts = append(opts, models.PollOption{ID: uuid.NewString(), Text: t, Voters: []string{}})
	}
	s := settings
	m := models.Message{
		ID:       uuid.NewString(),
		Name:     name,
		Identity: identity,
		Type:     models.KindPoll,
		Question: question,
		Options:  opts,
		Settings: &s,
	}
	if err := store.AppendMessage(&m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessagesCreated.Inc()
	return m, nil
}

// Vote records one voter's choice. Single-choice polls reject a voter who
// already appears in any option; multiple-choice polls reject only a repeat
// of the same option. The option list and total are replaced in one swap so
// counts and totalVotes can never tear.
func Vote(pollID, optionID, voter string) (models.Message, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		m, raw, err := store.GetMessage(pollID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return models.Message{}, ErrNotFound
			}
			return models.Message{}, err
		}
		if !m.IsPoll() {
			return models.Message{}, ErrNotFound
		}
		if m.Closed || pollExpired(&m) {
			telemetry.Votes.WithLabelValues("closed").Inc()
			return models.Message{}, ErrPollClosed
		}
		target := -1
		for i := range m.Options {
			if m.Options[i].ID == optionID {
				target = i
				break
			}
		}
		if target < 0 {
			telemetry.Votes.WithLabelValues("option_not_found").Inc()
			return models.Message{}, ErrOptionNotFound
		}
		multiple := m.Settings != nil && m.Settings.Multiple
		for i := range m.Options {
			if !multiple || i == target {
				for _, v := range m.Options[i].Voters {
					if v == voter {
						telemetry.Votes.WithLabelValues("already_voted").Inc()
						return models.Message{}, ErrAlreadyVoted
					}
				}
			}
		}
		m.Options[target].Voters = append(m.Options[target].Voters, voter)
		m.Options[target].Votes = len(m.Options[target].Voters)
		m.TotalVotes++

		err = store.SwapMessage(pollID, raw, m)
		if errors.Is(err, store.ErrModified) {
			telemetry.MutationConflicts.Inc()
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, ErrNotFound
		}
		if err != nil {
			return models.Message{}, err
		}
		telemetry.Votes.WithLabelValues("ok").Inc()
		return m, nil
	}
	logger.Warn("vote_conflict", "poll", pollID, "option", optionID)
	return models.Message{}, ErrConflict
}

// ClosePoll marks an expired or admin-closed poll; further votes fail.
func ClosePoll(pollID string) error {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		m, raw, err := store.GetMessage(pollID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !m.IsPoll() {
			return ErrNotFound
		}
		if m.Closed {
			return nil
		}
		m.Closed = true
		err = store.SwapMessage(pollID, raw, m)
		if errors.Is(err, store.ErrModified) {
			telemetry.MutationConflicts.Inc()
			continue
		}
		if err != nil {
			return err
		}
		logger.Info("poll_closed", "poll", pollID)
		return nil
	}
	return ErrConflict
}

func pollExpired(m *models.Message) bool {
	return m.Settings != nil && m.Settings.EndsAt > 0 &&
		time.Now().UTC().UnixNano() > m.Settings.EndsAt
}
