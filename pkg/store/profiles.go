package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
)

func profileKey(identity string) []byte { return []byte("profile:" + identity) }

// GetProfile returns the profile stored for the identity.
func GetProfile(identity string) (models.UserProfile, error) {
	var p models.UserProfile
	if db == nil {
		return p, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(profileKey(identity))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return p, ErrNotFound
		}
		return p, err
	}
	raw := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid stored profile %s: %w", identity, err)
	}
	return p, nil
}

// SaveProfile writes the profile record, replacing any prior value.
func SaveProfile(p models.UserProfile) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := db.Set(profileKey(p.Identity), data, pebble.Sync); err != nil {
		logger.Error("save_profile_failed", "identity", p.Identity, "error", err)
		return err
	}
	logger.Debug("profile_saved", "identity", p.Identity)
	return nil
}

// ListProfiles returns every stored profile.
func ListProfiles() ([]models.UserProfile, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("profile:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.UserProfile
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var p models.UserProfile
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, iter.Error()
}

// MutateProfile runs fn against the current profile (or a fresh record when
// none exists) and persists the result under the identity's stripe lock.
func MutateProfile(identity string, fn func(*models.UserProfile)) (models.UserProfile, error) {
	mu := lockFor("profile:" + identity)
	mu.Lock()
	defer mu.Unlock()

	p, err := GetProfile(identity)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return p, err
	}
	if errors.Is(err, ErrNotFound) {
		p = models.UserProfile{Identity: identity, Role: models.RoleStudent}
	}
	fn(&p)
	if err := SaveProfile(p); err != nil {
		return p, err
	}
	return p, nil
}
