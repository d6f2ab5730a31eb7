package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fomm/internal"
	"fomm/internal/config"
	"fomm/internal/storage"
)

func newTestService(t *testing.T) (*ProcessingService, *storage.DB, string) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "fomm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewProcessingService(db, config.Config{OutputDir: filepath.Join(tmp, "out")}, nil), db, tmp
}

func packingList(t *testing.T) []byte {
	return mkXLSX(t, testSheet{name: "Blad1", rows: [][]any{
		{"PO", "EAN CODES", "ORDERED", "PACKED", "PERCENTAGE"},
		{4500123, "8712345678906", 12, 12, "0,00%"},
		{4500123, "8712345678913", 10, 7, "-30,00%"},
	}})
}

func storeEmail(t *testing.T, db *storage.DB, dir, messageID string, raw []byte) internal.EmailRow {
	t.Helper()
	path := filepath.Join(dir, messageID+".eml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	email, err := db.UpsertEmail("imap", messageID, "Pakbon", "orders@supplier.test", "2026-10-01T08:00:00Z", "hash-"+messageID, path, "fetched")
	require.NoError(t, err)
	return email
}

func TestProcessFilesStoresRun(t *testing.T) {
	svc, db, _ := newTestService(t)

	run, err := svc.ProcessFiles(SourceCLI, nil, []internal.InputFile{{Name: "week41.xlsx", Content: packingList(t)}})
	require.NoError(t, err)
	assert.NotEmpty(t, run.TraceID)
	assert.Len(t, run.Packed.Rows, 2)
	assert.Len(t, run.Deviations.Rows, 1)

	stored, err := db.MustRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.TraceID, stored.TraceID)
	assert.Equal(t, SourceCLI, stored.Source)
	assert.Equal(t, 1, stored.Files)

	packed, err := db.GetReport(run.RunID, storage.ReportPacked)
	require.NoError(t, err)
	assert.Equal(t, run.Packed.Records(), packed.Records())
}

func TestExportRun(t *testing.T) {
	svc, _, tmp := newTestService(t)
	run, err := svc.ProcessFiles(SourceCLI, nil, []internal.InputFile{{Name: "week41.xlsx", Content: packingList(t)}})
	require.NoError(t, err)

	dir := filepath.Join(tmp, "export")
	summary, err := svc.ExportRun(run.RunID, dir)
	require.NoError(t, err)

	blob, err := os.ReadFile(filepath.Join(dir, DeviationsFileName))
	require.NoError(t, err)
	assert.Equal(t, "PO,EAN CODES,ORDERED,PACKED,PERCENTAGE\n4500123,8712345678913,10,7,\"-30,00%\"\n", string(blob))
	assert.Equal(t, filepath.Join(dir, PackedFileName), summary.PackedPath)

	_, err = svc.ExportRun(run.RunID+100, dir)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessEmail(t *testing.T) {
	svc, db, tmp := newTestService(t)
	raw := mkEML(t, "Pakbon week 41", testAttachment{name: "week41.xlsx", contentType: xlsxContentType, content: packingList(t)})
	email := storeEmail(t, db, tmp, "m1", raw)

	res, err := svc.ProcessEmail(email)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 2, res.Packed)
	assert.Equal(t, 1, res.Deviations)

	got, err := db.GetEmailByID(email.ID)
	require.NoError(t, err)
	assert.Equal(t, "processed", got.Status)

	// reprocessing replaces the earlier run
	again, err := svc.ProcessEmail(email)
	require.NoError(t, err)
	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, again.RunID, runs[0].ID)
}

func TestProcessEmailWithoutSpreadsheet(t *testing.T) {
	svc, db, tmp := newTestService(t)
	raw := mkEML(t, "Factuur", testAttachment{name: "factuur.pdf", contentType: "application/pdf", content: []byte("%PDF-1.4")})
	email := storeEmail(t, db, tmp, "m2", raw)

	res, err := svc.ProcessEmail(email)
	require.NoError(t, err)
	assert.Zero(t, res.RunID)

	got, err := db.GetEmailByID(email.ID)
	require.NoError(t, err)
	assert.Equal(t, "skipped", got.Status)
}

func TestProcessPendingFiltersProvider(t *testing.T) {
	svc, db, tmp := newTestService(t)
	raw := mkEML(t, "Pakbon", testAttachment{name: "week41.xlsx", contentType: xlsxContentType, content: packingList(t)})
	storeEmail(t, db, tmp, "m3", raw)

	emails, rows, err := svc.ProcessPending(10, "gmail")
	require.NoError(t, err)
	assert.Zero(t, emails)
	assert.Zero(t, rows)

	emails, rows, err = svc.ProcessPending(10, "imap")
	require.NoError(t, err)
	assert.Equal(t, 1, emails)
	assert.Equal(t, 3, rows)

	res, err := svc.ProcessByProviderMessageID("imap", "m3")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Packed)

	_, err = svc.ProcessByProviderMessageID("imap", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessPendingMarksUnreadableMailFailed(t *testing.T) {
	svc, db, tmp := newTestService(t)
	raw := mkEML(t, "Pakbon", testAttachment{name: "week41.xlsx", contentType: xlsxContentType, content: packingList(t)})
	bad := storeEmail(t, db, tmp, "m4", raw)
	good := storeEmail(t, db, tmp, "m5", raw)
	require.NoError(t, os.Remove(bad.RawRef))

	emails, rows, err := svc.ProcessPending(10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, emails)
	assert.Equal(t, 3, rows)

	got, err := db.GetEmailByID(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	got, err = db.GetEmailByID(good.ID)
	require.NoError(t, err)
	assert.Equal(t, "processed", got.Status)

	_, err = svc.ProcessEmail(bad)
	assert.ErrorIs(t, err, ErrUnreadableEmail)

	emails, _, err = svc.ProcessPending(10, "")
	require.NoError(t, err)
	assert.Zero(t, emails)
}

func TestProcessPendingLimitAppliesPerProvider(t *testing.T) {
	svc, db, tmp := newTestService(t)
	for _, id := range []string{"g1", "g2", "g3"} {
		_, err := db.UpsertEmail("gmail", id, "Nieuwsbrief", "news@example.test", "2026-09-01T08:00:00Z", "hash-"+id, filepath.Join(tmp, id+".eml"), "fetched")
		require.NoError(t, err)
	}
	raw := mkEML(t, "Pakbon", testAttachment{name: "week41.xlsx", contentType: xlsxContentType, content: packingList(t)})
	email := storeEmail(t, db, tmp, "m6", raw)

	emails, _, err := svc.ProcessPending(2, "imap")
	require.NoError(t, err)
	assert.Equal(t, 1, emails)

	got, err := db.GetEmailByID(email.ID)
	require.NoError(t, err)
	assert.Equal(t, "processed", got.Status)
}
