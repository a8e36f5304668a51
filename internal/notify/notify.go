// Package notify delivers run alerts to chat services.
package notify

import (
	"context"
	"errors"

	"go.uber.org/multierr"
)

var ErrDisabled = errors.New("notifier disabled")

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi sends to every notifier and returns all failures combined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}

// Build returns the notifiers that are configured, nil when there are none.
func Build(slackWebhook, telegramToken, telegramChat string) Notifier {
	var m Multi
	if s := NewSlack(slackWebhook); s != nil {
		m = append(m, s)
	}
	if t := NewTelegram(telegramToken, telegramChat); t != nil {
		m = append(m, t)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
