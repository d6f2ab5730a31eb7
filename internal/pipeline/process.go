package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"fomm/internal"
	"fomm/internal/config"
	"fomm/internal/logging"
	"fomm/internal/storage"
)

const (
	SourceCLI  = "cli"
	SourceHTTP = "http"
	SourceMail = "mail"
)

type ProcessingService struct {
	db     *storage.DB
	cfg    config.Config
	logger *slog.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, logger *slog.Logger) *ProcessingService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ProcessingService{db: db, cfg: cfg, logger: logger}
}

type RunResult struct {
	RunID   int
	TraceID string
	Result
}

// ProcessFiles runs the pipeline over files and stores the run.
func (s *ProcessingService) ProcessFiles(source string, emailID *int, files []internal.InputFile) (RunResult, error) {
	start := time.Now()
	traceID := uuid.NewString()
	logger := s.logger.With("trace_id", traceID, "source", source)

	res := Process(files, logger)
	runID, err := s.db.SaveRun(traceID, source, emailID, len(files), res.Packed, res.Deviations, res.Outcomes)
	if err != nil {
		return RunResult{}, fmt.Errorf("save run: %w", err)
	}

	logger.Info("run stored",
		"run_id", runID,
		"skipped", len(res.Skipped()),
		"took_ms", time.Since(start).Milliseconds(),
	)
	return RunResult{RunID: runID, TraceID: traceID, Result: res}, nil
}

// ExportRun writes the stored reports of a run into dir.
func (s *ProcessingService) ExportRun(runID int, dir string) (ExportSummary, error) {
	if _, err := s.db.MustRun(runID); err != nil {
		return ExportSummary{}, err
	}
	packed, err := s.db.GetReport(runID, storage.ReportPacked)
	if err != nil {
		return ExportSummary{}, err
	}
	deviations, err := s.db.GetReport(runID, storage.ReportDeviations)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportReports(packed, deviations, dir, s.ExportOptions())
}

func (s *ProcessingService) ExportOptions() ExportOptions {
	return ExportOptions{Encoding: s.cfg.CSVEncoding, XLSX: s.cfg.ExportXLSX}
}

type ProcessResult struct {
	EmailID    int
	RunID      int
	Files      int
	Packed     int
	Deviations int
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(email)
}

// ErrUnreadableEmail marks a stored mail whose raw message cannot be read
// or parsed. Such mails are set to failed instead of stopping a batch.
var ErrUnreadableEmail = errors.New("unreadable email")

// ProcessPending processes fetched mails and returns how many mails and
// report rows were handled. Unreadable mails are marked failed and
// skipped; only storage errors stop the batch.
func (s *ProcessingService) ProcessPending(limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", provider, limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	processedRows := 0
	for _, email := range pending {
		res, err := s.ProcessEmail(email)
		if errors.Is(err, ErrUnreadableEmail) {
			s.logger.Warn("email processing failed", "email_id", email.ID, "message_id", email.MessageID, "err", err)
			if err := s.db.UpdateEmailStatus(email.ID, "failed"); err != nil {
				return processedEmails, processedRows, err
			}
			continue
		}
		if err != nil {
			return processedEmails, processedRows, err
		}
		processedEmails++
		processedRows += res.Packed + res.Deviations
	}
	return processedEmails, processedRows, nil
}

func (s *ProcessingService) ProcessEmail(email internal.EmailRow) (ProcessResult, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("%w %d: %w", ErrUnreadableEmail, email.ID, err)
	}

	files, _, err := ExtractAttachmentsFromEmailRaw(raw)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("%w %d: parse: %w", ErrUnreadableEmail, email.ID, err)
	}

	if len(files) == 0 {
		s.logger.Info("email has no spreadsheet attachments", "email_id", email.ID, "subject", email.Subject)
		if err := s.db.ClearEmailRuns(email.ID); err != nil {
			return ProcessResult{}, err
		}
		if err := s.db.UpdateEmailStatus(email.ID, "skipped"); err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{EmailID: email.ID}, nil
	}

	// SaveRun replaces earlier runs of this email.
	emailID := email.ID
	run, err := s.ProcessFiles(SourceMail, &emailID, files)
	if err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return ProcessResult{}, err
	}

	return ProcessResult{
		EmailID:    email.ID,
		RunID:      run.RunID,
		Files:      len(files),
		Packed:     len(run.Packed.Rows),
		Deviations: len(run.Deviations.Rows),
	}, nil
}
