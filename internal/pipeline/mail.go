package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"

	"fomm/internal"
)

var spreadsheetContentTypes = map[string]string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/vnd.ms-excel.sheet.macroenabled.12":                    ".xlsm",
	"application/vnd.ms-excel":                                          ".xls",
}

// ExtractAttachmentsFromEmailRaw returns the spreadsheet attachments of a
// raw message in message order, plus its subject.
func ExtractAttachmentsFromEmailRaw(raw []byte) ([]internal.InputFile, string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}

	parts := make([]*enmime.Part, 0, len(env.Attachments)+len(env.Inlines))
	parts = append(parts, env.Attachments...)
	parts = append(parts, env.Inlines...)

	out := []internal.InputFile{}
	for i, part := range parts {
		name := strings.TrimSpace(part.FileName)
		ext, isSheetType := spreadsheetContentTypes[strings.ToLower(part.ContentType)]
		switch {
		case IsSpreadsheetName(name):
		case isSheetType:
			if name == "" {
				name = fmt.Sprintf("attachment-%d%s", i+1, ext)
			} else {
				name += ext
			}
		default:
			continue
		}
		out = append(out, internal.InputFile{Name: name, Content: part.Content})
	}

	return out, env.GetHeader("Subject"), nil
}
