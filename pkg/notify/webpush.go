package notify

import (
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// WebPushSender delivers payloads over the Web Push protocol with VAPID
// authentication.
type WebPushSender struct {
	subscriber string
	publicKey  string
	privateKey string
	ttl        int
}

// NewWebPushSender builds a sender from the configured VAPID key pair. The
// subscriber is the operator contact (mailto: address) sent to push
// services.
func NewWebPushSender(subscriber, publicKey, privateKey string) *WebPushSender {
	return &WebPushSender{
		subscriber: subscriber,
		publicKey:  publicKey,
		privateKey: privateKey,
		ttl:        60,
	}
}

// Send pushes the encoded payload to one endpoint. A 404/410 response maps
// to ErrGone so the dispatcher can prune the subscription.
func (s *WebPushSender) Send(sub SubscriptionRef, body []byte) error {
	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}
