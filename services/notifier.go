package services

import (
	"fmt"

	"lanos_go/config"
	"lanos_go/forms"
)

// NewNotifier builds the messaging webhook selected by NOTIFIER_PROVIDER.
func NewNotifier(cfg *config.Config) (forms.Notifier, error) {
	switch cfg.NotifierProvider {
	case "line":
		n, err := NewLineNotifier(cfg.LineChannelSecret, cfg.LineChannelAccessToken, cfg.LineTargetID, "")
		if err != nil {
			return nil, err
		}
		return n, nil
	case "telegram", "":
		n, err := NewTelegramNotifier(cfg.TelegramAPIBase, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.BackendTimeout)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notifier provider %q", cfg.NotifierProvider)
	}
}
