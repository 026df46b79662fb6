package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/ayukmesoh/storekeeper/internal/config"
	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// Notification titles per billing event. Unknown events fall through with
// the raw event type as title.
var eventTitles = map[string]string{
	domain.EventTrialEndingSoon:      "Your trial is ending soon",
	domain.EventSubscriptionExpiring: "Your subscription is expiring",
	domain.EventRenewalSucceeded:     "Subscription renewed",
	domain.EventRenewalFailed:        "Renewal payment failed",
	domain.EventSubscriptionExpired:  "Subscription expired",
	domain.EventSubscriptionCanceled: "Subscription canceled",
	domain.EventPaymentReceived:      "Payment received",
}

// FCMNotifier delivers billing events as Firebase Cloud Messaging pushes to
// a per-shop topic, and records every attempt in the notification log.
type FCMNotifier struct {
	client  *messaging.Client
	records domain.NotificationRepository
}

// NewFCMNotifier creates the push notifier from Firebase credentials.
func NewFCMNotifier(ctx context.Context, cfg config.FirebaseConfig, records domain.NotificationRepository) (*FCMNotifier, error) {
	app, err := initFirebase(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FCM client: %w", err)
	}
	return &FCMNotifier{client: client, records: records}, nil
}

// Notify pushes the event to the shop's topic. The notification record is
// written even when delivery fails, with Delivered=false, so support can see
// what a shop missed.
func (n *FCMNotifier) Notify(ctx context.Context, eventType, shopID string, payload map[string]string) error {
	title, ok := eventTitles[eventType]
	if !ok {
		title = eventType
	}

	data := map[string]string{"event_type": eventType}
	for k, v := range payload {
		data[k] = v
	}

	_, sendErr := n.client.Send(ctx, &messaging.Message{
		Topic: "shop-" + shopID,
		Notification: &messaging.Notification{
			Title: title,
		},
		Data: data,
	})

	record := &domain.Notification{
		ShopID:    shopID,
		EventType: eventType,
		Payload:   payload,
		Delivered: sendErr == nil,
	}
	if err := n.records.Create(ctx, record); err != nil {
		log.Printf("[Notifier] Failed to record notification for shop %s: %v", shopID, err)
	}

	if sendErr != nil {
		return fmt.Errorf("failed to send push to shop %s: %w", shopID, sendErr)
	}
	return nil
}

// initFirebase initializes the Firebase Admin SDK from environment-style
// credentials (base64 private key).
func initFirebase(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	privateKey, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Firebase private key: %w", err)
	}

	credentialsJSON, err := json.Marshal(map[string]interface{}{
		"type":         "service_account",
		"project_id":   cfg.ProjectID,
		"private_key":  string(privateKey),
		"client_email": cfg.ClientEmail,
	})
	if err != nil {
		return nil, err
	}

	return firebase.NewApp(ctx, nil, option.WithCredentialsJSON(credentialsJSON))
}
