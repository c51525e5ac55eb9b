package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"cardiometrix/internal/types"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/push-daily-risk"

func testMessage() types.PushMessage {
	return types.PushMessage{
		MessageID: "u-1:2026-03-31",
		UserID:    "u-1",
		AsOfDate:  "2026-03-31",
		Band:      types.BandAmber,
		NudgeText: "Try swapping one salty snack for fruit today.",
	}
}

func TestDailyRiskComputed_SendsMessage(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := NewPushTrigger(mock, testQueueURL, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := trigger.DailyRiskComputed(context.Background(), testMessage()); err != nil {
		t.Fatalf("DailyRiskComputed: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("SendMessage calls = %d, want 1", len(mock.calls))
	}
	input := mock.calls[0]
	if *input.QueueUrl != testQueueURL {
		t.Errorf("QueueUrl = %s, want %s", *input.QueueUrl, testQueueURL)
	}

	var sent types.PushMessage
	if err := json.Unmarshal([]byte(*input.MessageBody), &sent); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if sent != testMessage() {
		t.Fatalf("sent = %+v, want %+v", sent, testMessage())
	}

	attr, ok := input.MessageAttributes["message_id"]
	if !ok || *attr.StringValue != "u-1:2026-03-31" {
		t.Fatalf("message_id attribute = %+v, want u-1:2026-03-31", attr)
	}
	band, ok := input.MessageAttributes["band"]
	if !ok || *band.StringValue != "amber" {
		t.Fatalf("band attribute = %+v, want amber", band)
	}
}

func TestDailyRiskComputed_SQSFailure(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("throttled")}
	trigger := NewPushTrigger(mock, testQueueURL, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := trigger.DailyRiskComputed(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error when SQS send fails")
	}
}
