// Package queue dispatches push-notification payloads to the external
// notification service via SQS. This service never talks to device push
// gateways directly; it enqueues and the notification worker fleet delivers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"cardiometrix/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// PushTrigger enqueues a push message after a user-day has been computed and
// persisted. It implements the orchestrator's post-commit hook.
type PushTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPushTrigger creates a PushTrigger sending to the given queue URL.
func NewPushTrigger(client SQSSender, queueURL string, logger *slog.Logger) *PushTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushTrigger{client: client, queueURL: queueURL, logger: logger}
}

// DailyRiskComputed serializes the push message and enqueues it. The message
// ID doubles as the SQS deduplication hint via a message attribute, so a
// recomputed day does not double-notify within the dedup window.
func (t *PushTrigger) DailyRiskComputed(ctx context.Context, msg types.PushMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal push message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"message_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.MessageID),
			},
			"band": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Band)),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send push message to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "push message sent",
		"queue_url", t.queueURL,
		"message_id", msg.MessageID,
		"user_id", msg.UserID,
		"band", string(msg.Band),
	)
	return nil
}
