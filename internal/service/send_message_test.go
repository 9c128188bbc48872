package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/platform/line"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pushCall struct {
	to, text string
}

type fakePusher struct {
	calls []pushCall
	err   error
}

func (f *fakePusher) PushText(_ context.Context, _ uuid.UUID, to, text string) error {
	f.calls = append(f.calls, pushCall{to: to, text: text})
	return f.err
}

func TestSendMessageAction_Execute(t *testing.T) {
	p := &fakePusher{}
	a := NewSendMessageAction(p, zap.NewNop())

	require.NoError(t, a.Execute(context.Background(), uuid.New(), " U123 ", "hello"))
	assert.Equal(t, []pushCall{{to: "U123", text: "hello"}}, p.calls)
}

func TestSendMessageAction_Validation(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		text      string
		field     string
	}{
		{name: "no recipient", recipient: "", text: "hi", field: "recipient_id"},
		{name: "empty text", recipient: "U1", text: "", field: "text"},
		{name: "blank text", recipient: "U1", text: "   ", field: "text"},
		{name: "too long", recipient: "U1", text: strings.Repeat("あ", MaxTextLength+1), field: "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePusher{}
			err := NewSendMessageAction(p, zap.NewNop()).Execute(context.Background(), uuid.New(), tt.recipient, tt.text)

			var v *ValidationError
			require.True(t, errors.As(err, &v))
			assert.Equal(t, tt.field, v.Field)
			assert.Empty(t, p.calls)
		})
	}
}

func TestSendMessageAction_MaxLengthAccepted(t *testing.T) {
	p := &fakePusher{}
	err := NewSendMessageAction(p, zap.NewNop()).Execute(context.Background(), uuid.New(), "U1", strings.Repeat("あ", MaxTextLength))
	require.NoError(t, err)
	assert.Len(t, p.calls, 1)
}

func TestSendMessageAction_PropagatesPlatformError(t *testing.T) {
	p := &fakePusher{err: line.ErrRateLimitExhausted}
	err := NewSendMessageAction(p, zap.NewNop()).Execute(context.Background(), uuid.New(), "U1", "hi")
	assert.ErrorIs(t, err, line.ErrRateLimitExhausted)
}
