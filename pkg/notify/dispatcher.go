// Package notify fans out push notifications after mutations commit. The
// dispatcher is a bounded in-memory queue drained by worker goroutines;
// enqueueing never blocks and delivery failures never reach the request that
// triggered them.
package notify

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/valyala/bytebufferpool"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/store"
	"chatsphere/pkg/telemetry"
)

// Payload is the notification body shown to the recipient.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
}

// ErrGone marks a delivery target reported permanently gone by the push
// service; the dispatcher removes such subscriptions.
var ErrGone = errors.New("subscription gone")

// Sender delivers an encoded payload to one subscription endpoint.
type Sender interface {
	Send(sub SubscriptionRef, body []byte) error
}

// SubscriptionRef is the delivery-target view a Sender needs.
type SubscriptionRef struct {
	Endpoint string
	P256dh   string
	Auth     string
}

type task struct {
	identity string
	payload  Payload
}

// Dispatcher drains a bounded queue of notification tasks. At-most-once per
// task; a full queue drops new tasks rather than blocking the mutation path.
type Dispatcher struct {
	ch     chan task
	sender Sender
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a dispatcher with the given queue capacity and worker count.
func New(sender Sender, capacity, workers int) *Dispatcher {
	if capacity <= 0 {
		capacity = 1024
	}
	if workers <= 0 {
		workers = 2
	}
	d := &Dispatcher{ch: make(chan task, capacity), sender: sender}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue hands a notification to the dispatcher. Never blocks; when the
// queue is full the task is dropped and counted.
func (d *Dispatcher) Enqueue(identity string, p Payload) {
	select {
	case d.ch <- task{identity: identity, payload: p}:
	default:
		telemetry.NotifyDropped.Inc()
		logger.Warn("notify_queue_full", "identity", identity)
	}
}

// Close stops accepting tasks and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.ch) })
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.ch {
		d.deliver(t)
	}
}

// deliver sends the payload to every registered target of the identity. A
// recipient with no subscriptions silently receives nothing. Targets the
// push service reports gone are removed so they are not retried forever.
func (d *Dispatcher) deliver(t task) {
	subs, err := store.ListSubscriptions(t.identity)
	if err != nil {
		logger.Error("notify_list_subscriptions_failed", "identity", t.identity, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(t.payload); err != nil {
		logger.Error("notify_encode_failed", "error", err)
		return
	}
	body := buf.Bytes()
	for _, s := range subs {
		ref := SubscriptionRef{Endpoint: s.Endpoint, P256dh: s.Keys.P256dh, Auth: s.Keys.Auth}
		err := d.sender.Send(ref, body)
		switch {
		case errors.Is(err, ErrGone):
			if derr := store.DeleteSubscription(s.Identity, s.ID); derr == nil {
				telemetry.NotifyPruned.Inc()
				logger.Info("subscription_pruned", "identity", s.Identity, "id", s.ID)
			}
		case err != nil:
			telemetry.NotifyFailed.Inc()
			logger.Warn("notify_send_failed", "identity", s.Identity, "error", err)
		default:
			telemetry.NotifySent.Inc()
		}
	}
}
