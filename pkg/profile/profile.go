// Package profile manages user records keyed by network identity: display
// names, roles, the blocked flag and the achievement/point ledger.
package profile

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
	"chatsphere/pkg/notify"
	"chatsphere/pkg/store"
)

// Achievement metadata; ids are what profiles store.
type Achievement struct {
	ID   string
	Name string
	Icon string
}

const achievementPoints = 10

var Achievements = map[string]Achievement{
	"first_message": {ID: "first_message", Name: "First Message", Icon: "💬"},
	"active_user":   {ID: "active_user", Name: "Active User", Icon: "🔥"},
	"popular":       {ID: "popular", Name: "Popular", Icon: "⭐"},
	"helpful":       {ID: "helpful", Name: "Helpful", Icon: "🤝"},
}

var (
	adminUsername string
	adminHash     string
)

type Notifier interface {
	Enqueue(identity string, p notify.Payload)
}

var notifier Notifier

// SetNotifier installs the dispatcher used for achievement notifications.
func SetNotifier(n Notifier) { notifier = n }

// SetAdminCredentials configures the admin account name and bcrypt hash.
func SetAdminCredentials(username, passwordHash string) {
	adminUsername = username
	adminHash = passwordHash
}

// IsAdminName reports whether a display name claims the admin account.
func IsAdminName(name string) bool {
	return adminUsername != "" && strings.EqualFold(strings.TrimSpace(name), adminUsername)
}

// VerifyAdminPassword checks the password against the configured hash.
func VerifyAdminPassword(password string) bool {
	if adminHash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(adminHash), []byte(password)) == nil
}

// Touch upserts the profile for an identity, refreshing name and last-seen.
// The returned flag reports whether the identity was new.
func Touch(identity, name string) (models.UserProfile, bool, error) {
	now := time.Now().UTC().UnixNano()
	created := false
	p, err := store.MutateProfile(identity, func(p *models.UserProfile) {
		if p.FirstSeen == 0 {
			p.FirstSeen = now
			created = true
		}
		if name != "" {
			p.Name = name
		}
		p.LastSeen = now
	})
	return p, created, err
}

// SetRole updates the identity's role.
func SetRole(identity, role string) error {
	_, err := store.MutateProfile(identity, func(p *models.UserProfile) {
		p.Role = role
	})
	return err
}

// SetBlocked toggles the blocked flag. Blocked identities are refused all
// further mutations.
func SetBlocked(identity string, blocked bool) error {
	_, err := store.MutateProfile(identity, func(p *models.UserProfile) {
		p.Blocked = blocked
	})
	if err == nil {
		logger.AuditEvent("profile_blocked_changed", "identity", identity, "blocked", blocked)
	}
	return err
}

// IsBlocked reports whether the identity is blocked. Unknown identities are
// not blocked.
func IsBlocked(identity string) bool {
	p, err := store.GetProfile(identity)
	if err != nil {
		return false
	}
	return p.Blocked
}

// Update applies caller-editable profile fields.
func Update(identity, avatar, bio, status string) (models.UserProfile, error) {
	return store.MutateProfile(identity, func(p *models.UserProfile) {
		if avatar != "" {
			p.Avatar = avatar
		}
		if bio != "" {
			p.Bio = bio
		}
		if status != "" {
			p.Status = status
		}
		p.LastSeen = time.Now().UTC().UnixNano()
	})
}

// Award grants an achievement once, adds its points and notifies the
// recipient. Awarding an unknown id is an error; re-awarding is a no-op.
func Award(identity, achievementID string) error {
	ach, ok := Achievements[achievementID]
	if !ok {
		return errors.New("unknown achievement: " + achievementID)
	}
	awarded := false
	_, err := store.MutateProfile(identity, func(p *models.UserProfile) {
		if p.HasAchievement(ach.ID) {
			return
		}
		p.Achievements = append(p.Achievements, ach.ID)
		p.Points += achievementPoints
		awarded = true
	})
	if err != nil {
		return err
	}
	if awarded {
		logger.Info("achievement_awarded", "identity", identity, "achievement", ach.ID)
		if notifier != nil {
			notifier.Enqueue(identity, notify.Payload{
				Title: "Achievement Unlocked!",
				Body:  "You earned: " + ach.Name + " " + ach.Icon,
				Icon:  "/icons/achievement.png",
			})
		}
	}
	return nil
}
