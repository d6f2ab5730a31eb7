package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"fomm/internal/config"
	"fomm/internal/connectors"
	"fomm/internal/logging"
	"fomm/internal/pipeline"
	"fomm/internal/storage"
)

const LastCycleKey = "listener.last_cycle"

type Service struct {
	db        *storage.DB
	cfg       config.Config
	logger    *slog.Logger
	connector connectors.MailConnector
}

func NewService(db *storage.DB, cfg config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{db: db, cfg: cfg, logger: logger.With("component", "listener")}
}

// WithConnector replaces the provider connector built from config.
func (s *Service) WithConnector(c connectors.MailConnector) *Service {
	s.connector = c
	return s
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	s.logger.Info("listener started", "provider", s.provider(), "interval", interval)
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("listener cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Exported  int
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	provider := s.provider()
	mailConnector := s.connector
	if mailConnector == nil {
		c, err := connectors.New(s.cfg, provider)
		if err != nil {
			return CycleResult{}, err
		}
		mailConnector = c
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.logger)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}

	processor := pipeline.NewProcessingService(s.db, s.cfg, s.logger)
	processedEmails, _, err := processor.ProcessPending(s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return CycleResult{}, err
	}

	res := CycleResult{Fetched: fetchResult.Fetched, Stored: fetchResult.Stored, Processed: processedEmails}
	if s.cfg.MailListenerAutoExport {
		exported, err := s.exportProcessed(processor, provider)
		if err != nil {
			return res, err
		}
		res.Exported = exported
	}

	if err := s.db.SetMetadata(LastCycleKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return res, err
	}

	s.logger.Info("listener cycle done",
		"provider", provider,
		"fetched", res.Fetched,
		"stored", res.Stored,
		"processed", res.Processed,
		"exported", res.Exported,
	)
	return res, nil
}

func (s *Service) exportProcessed(processor *pipeline.ProcessingService, provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus("processed", provider, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		run, err := s.db.LatestRunForEmail(email.ID)
		if err != nil {
			return exported, err
		}
		if run == nil {
			continue
		}
		dir := ExportDir(s.cfg.OutputDir, email.ID, email.MessageID)
		summary, err := processor.ExportRun(run.ID, dir)
		if err != nil {
			return exported, fmt.Errorf("export email %d: %w", email.ID, err)
		}
		if summary.PackedMessage != "" || summary.DeviationsMessage != "" {
			s.logger.Info("report not written", "email_id", email.ID, "packed", summary.PackedMessage, "deviations", summary.DeviationsMessage)
		}
		if err := s.db.UpdateEmailStatus(email.ID, "exported"); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func (s *Service) provider() string {
	return connectors.NormalizeProvider(s.cfg.MailListenerProvider)
}

// ExportDir is the per-mail output directory under outputDir.
func ExportDir(outputDir string, emailID int, messageID string) string {
	return filepath.Join(outputDir, "listener", fmt.Sprintf("%d_%s", emailID, sanitizeMessageID(messageID)))
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "", ">", "", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "\"", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
