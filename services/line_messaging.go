package services

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/linebot"
)

// LineNotifier pushes form submissions to a LINE group or user.
type LineNotifier struct {
	Bot    *linebot.Client
	Target string
}

// NewLineNotifier creates the LINE Messaging API client. endpointBase is
// only set in tests.
func NewLineNotifier(channelSecret, channelToken, target, endpointBase string) (*LineNotifier, error) {
	if channelToken == "" || target == "" {
		return nil, fmt.Errorf("LINE notifier disabled: missing channel access token or target id")
	}
	var opts []linebot.ClientOption
	if endpointBase != "" {
		opts = append(opts, linebot.WithEndpointBase(endpointBase))
	}
	bot, err := linebot.New(channelSecret, channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create LINE bot client: %w", err)
	}
	return &LineNotifier{Bot: bot, Target: target}, nil
}

// Send pushes text to the configured target
func (s *LineNotifier) Send(ctx context.Context, text string) error {
	if s.Bot == nil {
		return fmt.Errorf("LINE Bot client is not initialized")
	}
	_, err := s.Bot.PushMessage(s.Target, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	if err != nil {
		return fmt.Errorf("LINE Messaging API failed: %w", err)
	}
	return nil
}
