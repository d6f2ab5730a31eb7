package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fomm/internal/config"
	"fomm/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "fomm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ts := httptest.NewServer(New(db, config.Config{HTTPMaxUploadMB: 5}, nil).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func upload(t *testing.T, ts *httptest.Server, files map[string][]byte, order ...string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range order {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/process", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestProcessAndDownload(t *testing.T) {
	ts := newTestServer(t)

	files := map[string][]byte{
		"week41.xlsx": mkXLSX(t, [][]any{
			{"PO", "EAN CODES", "PACKED", "PERCENTAGE"},
			{4500123, "8712345678906", 12, "-6,00%"},
			{4500123, "8712345678913", 3, "1,00%"},
		}),
		"notes.txt": []byte("not a workbook"),
	}
	resp := upload(t, ts, files, "week41.xlsx", "notes.txt")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got ProcessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 2, got.Files)
	assert.Equal(t, 2, got.PackedRows)
	assert.Equal(t, 1, got.DeviationRows)
	assert.Equal(t, []string{"PO", "EAN CODES", "PACKED"}, got.Packed.Columns)
	assert.Equal(t, [][]string{{"4500123", "8712345678906", "12"}, {"4500123", "8712345678913", "3"}}, got.Packed.Rows)
	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, "notes.txt", got.Outcomes[1].File)
	assert.Equal(t, "unsupported_format", string(got.Outcomes[1].Reason))

	csvResp, err := http.Get(ts.URL + "/api/runs/" + strconv.Itoa(got.RunID) + "/packed.csv")
	require.NoError(t, err)
	defer csvResp.Body.Close()
	require.Equal(t, http.StatusOK, csvResp.StatusCode)
	assert.Equal(t, `attachment; filename="Inputfile.csv"`, csvResp.Header.Get("Content-Disposition"))
	var csvBody bytes.Buffer
	_, _ = csvBody.ReadFrom(csvResp.Body)
	assert.Equal(t, "PO,EAN CODES,PACKED\n4500123,8712345678906,12\n4500123,8712345678913,3\n", csvBody.String())

	devResp, err := http.Get(ts.URL + "/api/runs/" + strconv.Itoa(got.RunID) + "/deviations.csv")
	require.NoError(t, err)
	defer devResp.Body.Close()
	assert.Equal(t, `attachment; filename="Afwijkende-percentages.csv"`, devResp.Header.Get("Content-Disposition"))

	runResp, err := http.Get(ts.URL + "/api/runs/" + strconv.Itoa(got.RunID))
	require.NoError(t, err)
	defer runResp.Body.Close()
	var run RunResponse
	require.NoError(t, json.NewDecoder(runResp.Body).Decode(&run))
	assert.Equal(t, "http", run.Source)
	assert.Len(t, run.Outcomes, 2)

	listResp, err := http.Get(ts.URL + "/api/runs?limit=5")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var runs []RunResponse
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, got.RunID, runs[0].ID)
}

func TestProcessWithoutData(t *testing.T) {
	ts := newTestServer(t)
	resp := upload(t, ts, map[string][]byte{"leeg.xlsx": mkXLSX(t, [][]any{{"Artikel"}, {"Stoel"}})}, "leeg.xlsx")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got ProcessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "No valid PO/EAN CODES/PACKED data found in uploaded files.", got.PackedMessage)
	assert.Equal(t, "No rows with PERCENTAGE below -5% found.", got.DeviationsMessage)

	csvResp, err := http.Get(ts.URL + "/api/runs/" + strconv.Itoa(got.RunID) + "/packed.csv")
	require.NoError(t, err)
	defer csvResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, csvResp.StatusCode)
}

func TestProcessRejectsEmptyUpload(t *testing.T) {
	ts := newTestServer(t)
	resp := upload(t, ts, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e ErrResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "no files uploaded", e.Error)
}

func TestRunErrors(t *testing.T) {
	ts := newTestServer(t)
	for path, status := range map[string]int{
		"/api/runs/abc":           http.StatusBadRequest,
		"/api/runs/99":            http.StatusNotFound,
		"/api/runs/99/packed.csv": http.StatusNotFound,
		"/api/runs?limit=-1":      http.StatusBadRequest,
		"/healthz":                http.StatusOK,
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, path)
	}
}
