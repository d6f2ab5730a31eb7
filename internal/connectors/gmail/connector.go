package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"fomm/internal"
	"fomm/internal/config"
)

// SpreadsheetQuery narrows the listing to mails carrying a workbook.
const SpreadsheetQuery = "has:attachment (filename:xlsx OR filename:xls OR filename:xlsm)"

type Connector struct {
	service *gmail.Service
	query   string
	limiter *RateLimiter
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range [][2]string{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(context.Background(), option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc, query: SpreadsheetQuery, limiter: NewRateLimiter(cfg.GmailRateLimitRPS)}, nil
}

func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	if err := c.limiter.WaitTurn(ctx); err != nil {
		return nil, err
	}
	listResp, err := c.service.Users.Messages.List("me").
		LabelIds(label).
		Q(c.query).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMailMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		if ref.Id == "" {
			continue
		}

		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}
		rawResp, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		if rawResp.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}

		out = append(out, messageFromRaw(ref.Id, raw))
	}

	return out, nil
}

// messageFromRaw reads the ledger headers straight from the RFC 5322 bytes,
// so one API call per message is enough.
func messageFromRaw(gmailID string, raw []byte) internal.FetchedMailMessage {
	msg := internal.FetchedMailMessage{
		Provider:   "gmail",
		MessageID:  gmailID,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return msg
	}
	if id := strings.TrimSpace(parsed.Header.Get("Message-ID")); id != "" {
		msg.MessageID = id
	}
	msg.Subject = parsed.Header.Get("Subject")
	msg.From = parsed.Header.Get("From")
	if t, err := parsed.Header.Date(); err == nil {
		msg.ReceivedAt = t.UTC().Format(time.RFC3339)
	}
	return msg
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
