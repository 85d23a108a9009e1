package notify

import (
	"log/slog"
	"strings"

	"github.com/gen2brain/beeep"
)

// DesktopSender shows native desktop notifications through beeep.
type DesktopSender struct {
	logger *slog.Logger
}

func NewDesktopSender(logger *slog.Logger, appName string) *DesktopSender {
	if appName != "" {
		beeep.AppName = appName
	}

	return &DesktopSender{logger: logger}
}

func (s *DesktopSender) Send(payload Payload) {
	if s == nil {
		return
	}

	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	if title == "" && content == "" {
		return
	}

	if err := beeep.Notify(title, content, ""); err != nil {
		s.logger.Warn("desktop notification failed", "error", err)
	}
}
