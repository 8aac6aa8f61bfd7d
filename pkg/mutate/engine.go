// Package mutate applies feed mutations with per-record atomicity. Every
// read-modify-write runs as a bounded compare-and-swap loop against the
// stored record, so two concurrent reactions or votes can never silently
// lose an update.
package mutate

import (
	"errors"

	"github.com/google/uuid"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
	"chatsphere/pkg/notify"
	"chatsphere/pkg/store"
	"chatsphere/pkg/telemetry"
)

// maxSwapAttempts bounds the optimistic retry loop before ErrConflict is
// surfaced to the caller.
const maxSwapAttempts = 5

// Notifier receives post-commit fan-out events. Enqueue must not block and
// its failures never reach the mutation caller.
type Notifier interface {
	Enqueue(identity string, p notify.Payload)
}

var notifier Notifier

// SetNotifier installs the dispatcher used for reply notifications. A nil
// notifier disables fan-out.
func SetNotifier(n Notifier) { notifier = n }

// CreateInput carries the caller-supplied fields of a new message or reply.
type CreateInput struct {
	Name            string
	Body            string
	Type            string
	Identity        string
	ThreadID        string
	ParentMessageID string
	Attachments     []models.Attachment
	VoiceNote       *models.VoiceNote
}

// CreateMessage validates content, assigns identity and ordering, appends
// the record and notifies the parent author on replies. The stored record is
// returned.
func CreateMessage(in CreateInput) (models.Message, error) {
	m := models.Message{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Body:            in.Body,
		Type:            in.Type,
		Identity:        in.Identity,
		ThreadID:        in.ThreadID,
		ParentMessageID: in.ParentMessageID,
		Attachments:     in.Attachments,
		VoiceNote:       in.VoiceNote,
	}
	if m.Type == "" {
		m.Type = models.KindUser
	}
	if !m.HasContent() {
		return models.Message{}, ErrContentRequired
	}
	if err := store.AppendMessage(&m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessagesCreated.Inc()

	if m.ParentMessageID != "" {
		notifyParent(m)
	}
	return m, nil
}

// CreateSystemMessage appends a system record; used for boot-time seeding.
func CreateSystemMessage(text string) (models.Message, error) {
	m := models.Message{
		ID:   uuid.NewString(),
		Name: "System",
		Body: text,
		Type: models.KindSystem,
	}
	if err := store.AppendMessage(&m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessagesCreated.Inc()
	return m, nil
}

// notifyParent tells the parent message's author about a reply, unless the
// reply is their own. Fire-and-forget: any failure stays here.
func notifyParent(reply models.Message) {
	if notifier == nil {
		return
	}
	parent, _, err := store.GetMessage(reply.ParentMessageID)
	if err != nil {
		// dangling parent: the reply stands, nobody to notify
		return
	}
	if parent.Identity == "" || parent.Identity == reply.Identity {
		return
	}
	body := reply.Body
	if body == "" {
		body = "Sent an attachment"
	}
	if len(body) > 100 {
		body = body[:100]
	}
	notifier.Enqueue(parent.Identity, notify.Payload{
		Title: reply.Name + " replied to your message",
		Body:  body,
		Icon:  "/icons/reply.png",
	})
}

// AddReaction inserts the voter under the emoji's set. Reacting twice with
// the same pair is a success no-op.
func AddReaction(messageID, emoji, voter string) error {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		m, raw, err := store.GetMessage(messageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if m.HasReaction(emoji, voter) {
			telemetry.Reactions.WithLabelValues("noop").Inc()
			return nil
		}
		if m.Reactions == nil {
			m.Reactions = map[string][]string{}
		}
		m.Reactions[emoji] = append(m.Reactions[emoji], voter)
		err = store.SwapMessage(messageID, raw, m)
		if errors.Is(err, store.ErrModified) {
			telemetry.MutationConflicts.Inc()
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		telemetry.Reactions.WithLabelValues("add").Inc()
		return nil
	}
	logger.Warn("reaction_add_conflict", "message", messageID, "emoji", emoji)
	return ErrConflict
}

// RemoveReaction drops the voter from the emoji's set. A miss on either the
// emoji or the voter is a success no-op. An emptied set removes the emoji
// key entirely; the map never holds an emoji with zero voters.
func RemoveReaction(messageID, emoji, voter string) error {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		m, raw, err := store.GetMessage(messageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !m.HasReaction(emoji, voter) {
			telemetry.Reactions.WithLabelValues("noop").Inc()
			return nil
		}
		voters := m.Reactions[emoji]
		next := make([]string, 0, len(voters)-1)
		for _, v := range voters {
			if v != voter {
				next = append(next, v)
			}
		}
		if len(next) == 0 {
			delete(m.Reactions, emoji)
			if len(m.Reactions) == 0 {
				m.Reactions = nil
			}
		} else {
			m.Reactions[emoji] = next
		}
		err = store.SwapMessage(messageID, raw, m)
		if errors.Is(err, store.ErrModified) {
			telemetry.MutationConflicts.Inc()
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		telemetry.Reactions.WithLabelValues("remove").Inc()
		return nil
	}
	logger.Warn("reaction_remove_conflict", "message", messageID, "emoji", emoji)
	return ErrConflict
}

// DeleteMessage hard-deletes a record. Privilege is asserted by the caller;
// replies keep their dangling parent reference.
func DeleteMessage(messageID string) error {
	err := store.DeleteMessage(messageID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	telemetry.MessagesDeleted.Inc()
	return nil
}
