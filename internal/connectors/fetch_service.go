package connectors

import (
	"context"
	"log/slog"

	"fomm/internal/logging"
	"fomm/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
	logger    *slog.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	Known   int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *slog.Logger) *FetchService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		logger:    logger,
	}
}

// FetchAndStore pulls up to max messages from label and records them as
// fetched. Messages already in the ledger are counted as Known.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row, isNew, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if !isNew {
			res.Known++
			continue
		}
		res.Stored++
		s.logger.Debug("mail stored", "email_id", row.ID, "provider", row.Provider, "subject", row.Subject)
	}

	return res, nil
}
