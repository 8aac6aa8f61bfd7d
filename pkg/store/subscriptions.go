package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
)

func subKey(identity, id string) []byte { return []byte("sub:" + identity + ":" + id) }

// SaveSubscription registers a push delivery target for an identity.
func SaveSubscription(s models.Subscription) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	if err := db.Set(subKey(s.Identity, s.ID), data, pebble.Sync); err != nil {
		logger.Error("save_subscription_failed", "identity", s.Identity, "error", err)
		return err
	}
	logger.Info("subscription_saved", "identity", s.Identity, "id", s.ID)
	return nil
}

// DeleteSubscription removes a delivery target. Removing an absent target is
// not an error.
func DeleteSubscription(identity, id string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Delete(subKey(identity, id), pebble.Sync); err != nil {
		logger.Error("delete_subscription_failed", "identity", identity, "id", id, "error", err)
		return err
	}
	logger.Info("subscription_deleted", "identity", identity, "id", id)
	return nil
}

// ListSubscriptions returns every delivery target registered for an
// identity. An identity with no targets yields an empty slice.
func ListSubscriptions(identity string) ([]models.Subscription, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("sub:" + identity + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Subscription
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var s models.Subscription
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, iter.Error()
}
