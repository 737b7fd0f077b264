package alerting

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"vapi/internal/config"
)

// MessageSender is the part of the FCM client the notifier uses.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier publishes notifications to Firebase Cloud Messaging topics.
type FCMNotifier struct {
	sender MessageSender
	logger zerolog.Logger
}

// NewFCMNotifier builds a Firebase messaging client from config. Without a
// credentials file the application default credentials are used.
func NewFCMNotifier(ctx context.Context, cfg config.FCMConfig, logger zerolog.Logger) (*FCMNotifier, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return NewFCMNotifierWithSender(client, logger), nil
}

// NewFCMNotifierWithSender wires an existing sender.
func NewFCMNotifierWithSender(sender MessageSender, logger zerolog.Logger) *FCMNotifier {
	return &FCMNotifier{
		sender: sender,
		logger: logger.With().Str("component", "alert_fcm").Logger(),
	}
}

// Name identifies the channel.
func (n *FCMNotifier) Name() string { return "fcm" }

// Notify sends the message to its topic with high priority and the default sound.
func (n *FCMNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("fcm message for %s has no topic", msg.FeedKey)
	}

	id, err := n.sender.Send(ctx, buildFCMMessage(msg))
	if err != nil {
		return fmt.Errorf("send fcm message: %w", err)
	}

	n.logger.Info().Str("feed", msg.FeedKey).
		Str("group", msg.Group).
		Str("topic", msg.Topic).
		Str("message_id", id).
		Msg("notification sent")
	return nil
}

func buildFCMMessage(msg Message) *messaging.Message {
	return &messaging.Message{
		Topic: msg.Topic,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:       "default",
				ClickAction: clickAction,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}

var _ Notifier = (*FCMNotifier)(nil)
