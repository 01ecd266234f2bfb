package notifier

import (
	"context"
	"encoding/json"

	"github.com/Jakkraphat/identity_service/internal/dto"
	"github.com/Jakkraphat/identity_service/internal/interfaces"
)

const (
	keyVerifyEmail   = "user.verify_email"
	keyResetPassword = "user.reset_password"
)

// KafkaNotifier publishes mail events instead of sending directly.
type KafkaNotifier struct {
	producer interfaces.ProducerHandler
}

func NewKafkaNotifier(producer interfaces.ProducerHandler) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) SendVerificationCode(ctx context.Context, userID uint, email, code string) error {
	payload, err := json.Marshal(dto.VerifyEmailEvent{
		UserID: userID,
		Email:  email,
		Code:   code,
	})
	if err != nil {
		return err
	}
	return n.producer.PublishMessage(ctx, []byte(keyVerifyEmail), payload)
}

func (n *KafkaNotifier) SendResetCode(ctx context.Context, userID uint, email, code, expiresAt string) error {
	payload, err := json.Marshal(dto.ResetPasswordEvent{
		UserID:    userID,
		Email:     email,
		Code:      code,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}
	return n.producer.PublishMessage(ctx, []byte(keyResetPassword), payload)
}
