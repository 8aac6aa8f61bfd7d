package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/models"
)

var db *pebble.DB

// seq is appended to the ordering key so messages sharing a nanosecond
// timestamp keep their insertion order.
var seq uint64

// ErrNotFound is returned when a record is missing from the store.
var ErrNotFound = errors.New("record not found")

// ErrModified is returned by SwapMessage when the record changed since the
// caller read it. Callers are expected to re-read and retry.
var ErrModified = errors.New("record modified since read")

// onMutate is invoked after every successful message append/update/delete.
// The read cache registers its InvalidateAll here at startup.
var onMutate atomic.Value // func()

// recLocks serializes check-and-set cycles per record. Pebble has no
// conditional write, so the compare in SwapMessage must hold the record's
// stripe for the duration of the read+write.
var recLocks [64]sync.Mutex

func lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &recLocks[h.Sum32()%uint32(len(recLocks))]
}

// OnMutate registers fn to run after every successful message mutation.
func OnMutate(fn func()) { onMutate.Store(fn) }

func fireMutate() {
	if fn, ok := onMutate.Load().(func()); ok && fn != nil {
		fn()
	}
}

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func msgKey(id string) []byte { return []byte("msg:" + id) }

func ordKey(ts int64, s uint64) string {
	return fmt.Sprintf("%020d-%06d", ts, s)
}

// AppendMessage assigns the message's timestamp, insertion sequence and
// ordering keys, then writes the record plus its feed/thread/parent index
// rows in one batch. The assigned fields are set on m before return.
func AppendMessage(m *models.Message) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	m.TS = time.Now().UTC().UnixNano()
	m.Seq = atomic.AddUint64(&seq, 1)
	ord := ordKey(m.TS, m.Seq)

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(msgKey(m.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set([]byte("feed:"+ord), []byte(m.ID), nil); err != nil {
		return err
	}
	if m.ThreadID != "" {
		if err := b.Set([]byte("thread:"+m.ThreadID+":"+ord), []byte(m.ID), nil); err != nil {
			return err
		}
	}
	if m.ParentMessageID != "" {
		if err := b.Set([]byte("parent:"+m.ParentMessageID+":"+ord), []byte(m.ID), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("append_message_failed", "id", m.ID, "error", err)
		return err
	}
	logger.Info("message_appended", "id", m.ID, "type", m.Type, "thread", m.ThreadID)
	fireMutate()
	return nil
}

// GetMessage returns the decoded record and the raw stored bytes. The raw
// bytes act as the record's version for SwapMessage.
func GetMessage(id string) (models.Message, []byte, error) {
	var m models.Message
	if db == nil {
		return m, nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(msgKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return m, nil, ErrNotFound
		}
		return m, nil, err
	}
	raw := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, nil, fmt.Errorf("invalid stored message %s: %w", id, err)
	}
	return m, raw, nil
}

// SwapMessage replaces the record only if its stored bytes still equal
// expect. Ordering keys are derived from the record's original timestamp and
// sequence, so updates never reorder the feed.
func SwapMessage(id string, expect []byte, m models.Message) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	mu := lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	cur, closer, err := db.Get(msgKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	same := bytes.Equal(cur, expect)
	if closer != nil {
		_ = closer.Close()
	}
	if !same {
		return ErrModified
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set(msgKey(id), data, pebble.Sync); err != nil {
		logger.Error("swap_message_failed", "id", id, "error", err)
		return err
	}
	logger.Debug("message_swapped", "id", id)
	fireMutate()
	return nil
}

// DeleteMessage removes the record and its index rows. Index rows of replies
// referencing the deleted message are left in place; readers treat the
// missing parent as a dangling reference.
func DeleteMessage(id string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	mu := lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	m, _, err := GetMessage(id)
	if err != nil {
		return err
	}
	ord := ordKey(m.TS, m.Seq)
	b := db.NewBatch()
	defer b.Close()
	if err := b.Delete(msgKey(id), nil); err != nil {
		return err
	}
	if err := b.Delete([]byte("feed:"+ord), nil); err != nil {
		return err
	}
	if m.ThreadID != "" {
		if err := b.Delete([]byte("thread:"+m.ThreadID+":"+ord), nil); err != nil {
			return err
		}
	}
	if m.ParentMessageID != "" {
		if err := b.Delete([]byte("parent:"+m.ParentMessageID+":"+ord), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "id", id, "error", err)
		return err
	}
	logger.Info("message_deleted", "id", id)
	fireMutate()
	return nil
}

// listByIndex resolves an index prefix into decoded messages in key order.
func listByIndex(prefix []byte) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		id := string(iter.Value())
		m, _, err := GetMessage(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// index row outliving its record (deleted concurrently)
				continue
			}
			return nil, err
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// ListMessages returns every message ordered by timestamp ascending,
// insertion order breaking ties.
func ListMessages() ([]models.Message, error) {
	return listByIndex([]byte("feed:"))
}

// ListThread returns the thread root (if it still exists) followed by all
// messages sharing the thread id, in timestamp order.
func ListThread(threadID string) ([]models.Message, error) {
	var out []models.Message
	if root, _, err := GetMessage(threadID); err == nil {
		out = append(out, root)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	rest, err := listByIndex([]byte("thread:" + threadID + ":"))
	if err != nil {
		return nil, err
	}
	return append(out, rest...), nil
}

// ListReplies returns the direct replies of a message in timestamp order.
// A missing parent is not an error; its replies remain listed.
func ListReplies(parentID string) ([]models.Message, error) {
	return listByIndex([]byte("parent:" + parentID + ":"))
}

// CountMessages returns the number of stored message records.
func CountMessages() (int, error) {
	if db == nil {
		return 0, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("feed:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		n++
	}
	return n, iter.Error()
}
