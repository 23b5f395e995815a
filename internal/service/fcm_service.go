package service

import (
	"context"
	"log"

	"momopay/internal/domain"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type messageSender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// FCMService pushes payment outcomes to the payer's device via Firebase Cloud Messaging.
type FCMService struct {
	client messageSender
}

// NewFCMService creates an FCM service. Returns nil if Firebase is not configured.
func NewFCMService(serviceAccountPath string) *FCMService {
	if serviceAccountPath == "" {
		return nil
	}
	ctx := context.Background()
	opt := option.WithCredentialsFile(serviceAccountPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		log.Printf("[FCM] Failed to init Firebase app: %v", err)
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("[FCM] Failed to get Messaging client: %v", err)
		return nil
	}
	return &FCMService{client: client}
}

func (s *FCMService) Name() string { return "fcm" }

// Deliver sends a push only for terminal outcomes of requests that carried a device token.
func (s *FCMService) Deliver(ctx context.Context, ev domain.Event) error {
	if s == nil || ev.NotifyToken == "" || !ev.To.IsTerminal() {
		return nil
	}
	title, body := pushText(ev)
	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"type":           "PAYMENT_UPDATE",
			"transaction_id": ev.TransactionID,
			"state":          string(ev.To),
		},
		Token: ev.NotifyToken,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
	_, err := s.client.Send(ctx, msg)
	return err
}

func pushText(ev domain.Event) (string, string) {
	amount := ev.Amount + " " + ev.Currency
	switch ev.To {
	case domain.StateSucceeded:
		return "Payment received", "Your payment of " + amount + " was successful"
	case domain.StateDeclined:
		return "Payment declined", "Your payment of " + amount + " was declined"
	case domain.StateTimedOut:
		return "Payment expired", "We did not receive a confirmation for " + amount
	case domain.StateCancelled:
		return "Payment cancelled", "The payment of " + amount + " was cancelled"
	default:
		return "Payment failed", "The payment of " + amount + " could not be completed"
	}
}
