package notifier

import (
	"context"
	"log"

	"github.com/ayukmesoh/storekeeper/internal/config"
	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// LogNotifier is the development fallback: events go to the process log and
// the notification record, no push is sent.
type LogNotifier struct {
	records domain.NotificationRepository
}

func NewLogNotifier(records domain.NotificationRepository) *LogNotifier {
	return &LogNotifier{records: records}
}

func (n *LogNotifier) Notify(ctx context.Context, eventType, shopID string, payload map[string]string) error {
	log.Printf("[Notifier] %s -> shop %s: %v", eventType, shopID, payload)
	return n.records.Create(ctx, &domain.Notification{
		ShopID:    shopID,
		EventType: eventType,
		Payload:   payload,
		Delivered: true,
	})
}

// New returns the appropriate Notifier based on config. Without Firebase
// credentials the log notifier is used, mirroring the payment provider's
// mock-when-unconfigured behavior.
func New(ctx context.Context, cfg config.FirebaseConfig, records domain.NotificationRepository) domain.Notifier {
	if cfg.ProjectID == "" || cfg.PrivateKey == "" {
		log.Println("[Notifier] Using log notifier (no Firebase credentials configured)")
		return NewLogNotifier(records)
	}

	fcm, err := NewFCMNotifier(ctx, cfg, records)
	if err != nil {
		log.Printf("[Notifier] FCM init failed, falling back to log notifier: %v", err)
		return NewLogNotifier(records)
	}
	log.Printf("[Notifier] Using FCM notifier (project: %s)", cfg.ProjectID)
	return fcm
}
