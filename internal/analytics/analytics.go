// Package analytics はプロダクト分析イベントの送信を提供する。
// 送信はベストエフォートで、失敗しても呼び出し元の処理には影響しない。
package analytics

import (
	"context"

	"github.com/posthog/posthog-go"
)

// イベント名
const (
	EventSignUpStart           = "sign_up_start"
	EventSignUpComplete        = "sign_up_complete"
	EventEmailVerificationSent = "email_verification_sent"
	EventEmailVerified         = "email_verified"
	EventLoginSuccess          = "login_success"
)

// Event は分析イベント。
type Event struct {
	DistinctID string
	Name       string
	Properties map[string]any
}

// Client は分析イベントの送信先。
type Client interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

type posthogClient struct {
	client posthog.Client
}

// NewPostHog はPostHogへ送信するClientを生成する。
func NewPostHog(apiKey, endpoint string) (Client, error) {
	client, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: endpoint})
	if err != nil {
		return nil, err
	}
	return &posthogClient{client: client}, nil
}

func (c *posthogClient) Send(_ context.Context, event Event) error {
	capture := posthog.Capture{
		DistinctId: event.DistinctID,
		Event:      event.Name,
		Properties: event.Properties,
	}

	if err := capture.Validate(); err != nil {
		return err
	}

	return c.client.Enqueue(capture)
}

func (c *posthogClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

type noopClient struct{}

// NewNoop は何も送信しないClientを生成する。
func NewNoop() Client {
	return noopClient{}
}

func (noopClient) Send(context.Context, Event) error { return nil }
func (noopClient) Close() error                      { return nil }
