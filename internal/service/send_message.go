package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxTextLength is the platform's limit for a single text message.
const MaxTextLength = 5000

type TextPusher interface {
	PushText(ctx context.Context, tenantID uuid.UUID, to, text string) error
}

// SendMessageAction is the workflow step that sends a text message to a
// linked contact.
type SendMessageAction struct {
	pusher TextPusher
	logger *zap.Logger
}

func NewSendMessageAction(pusher TextPusher, logger *zap.Logger) *SendMessageAction {
	return &SendMessageAction{pusher: pusher, logger: logger.With(zap.String("component", "send_message"))}
}

// Execute validates the input and pushes the message. Platform errors are
// returned unchanged so the workflow engine can decide whether to retry.
func (a *SendMessageAction) Execute(ctx context.Context, tenantID uuid.UUID, recipientID, text string) error {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return &ValidationError{Field: "recipient_id", Message: "is required"}
	}
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Message: "is required"}
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return &ValidationError{Field: "text", Message: "exceeds 5000 characters"}
	}

	if err := a.pusher.PushText(ctx, tenantID, recipientID, text); err != nil {
		return err
	}

	a.logger.Info("message sent",
		zap.String("tenant_id", tenantID.String()),
		zap.String("recipient_id", recipientID),
	)
	return nil
}
