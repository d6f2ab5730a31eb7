package connectors

import (
	"context"
	"fmt"
	"strings"

	"fomm/internal"
	"fomm/internal/config"
	gmailconnector "fomm/internal/connectors/gmail"
	imapconnector "fomm/internal/connectors/imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// New builds the connector for provider ("gmail" or "imap").
func New(cfg config.Config, provider string) (MailConnector, error) {
	switch NormalizeProvider(provider) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
