package domain

import (
	"context"
	"time"
)

// Notification event types emitted by the billing engine.
const (
	EventTrialEndingSoon      = "trial_ending_soon"
	EventSubscriptionExpiring = "subscription_expiring"
	EventRenewalSucceeded     = "renewal_succeeded"
	EventRenewalFailed        = "renewal_failed"
	EventSubscriptionExpired  = "subscription_expired"
	EventSubscriptionCanceled = "subscription_canceled"
	EventPaymentReceived      = "payment_received"
)

// Notification is the persisted record of a delivered (or attempted) event.
type Notification struct {
	ID        string            `bson:"_id,omitempty" json:"id"`
	ShopID    string            `bson:"shop_id" json:"shop_id"`
	EventType string            `bson:"event_type" json:"event_type"`
	Payload   map[string]string `bson:"payload,omitempty" json:"payload,omitempty"`
	Delivered bool              `bson:"delivered" json:"delivered"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
}

// Notifier delivers structured billing events to a shop. The billing engine
// is agnostic to the delivery channel; implementations decide templates and
// transport.
type Notifier interface {
	Notify(ctx context.Context, eventType, shopID string, payload map[string]string) error
}

// NotificationRepository defines operations for the notification log
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	GetByShop(ctx context.Context, shopID string, limit int64) ([]*Notification, error)
}
