package pipeline

import (
	"log/slog"

	"fomm/internal"
	"fomm/internal/logging"
)

// Result holds both reports of one run and what happened to every file and
// sheet that went into them.
type Result struct {
	Packed     internal.Table
	Deviations internal.Table
	Outcomes   []internal.Outcome
}

func (r Result) Skipped() []internal.Outcome {
	var out []internal.Outcome
	for _, o := range r.Outcomes {
		if o.Status == internal.OutcomeSkipped {
			out = append(out, o)
		}
	}
	return out
}

// Process runs the files through extraction, filtering and assembly. It
// holds no state between calls and never fails: unreadable units show up as
// skipped outcomes.
func Process(files []internal.InputFile, logger *slog.Logger) Result {
	if logger == nil {
		logger = logging.Discard()
	}

	var packed, deviations []internal.Table
	res := Result{}
	for _, file := range files {
		for _, sheet := range ExtractSheets(file) {
			outcome := sheet.Outcome
			if !sheet.OK() {
				logger.Info("sheet skipped",
					"file", outcome.File,
					"sheet", outcome.Sheet,
					"reason", string(outcome.Reason),
					"detail", outcome.Detail,
				)
				res.Outcomes = append(res.Outcomes, outcome)
				continue
			}

			if t, ok := ExtractPacked(sheet.Table); ok {
				outcome.PackedRows = len(t.Rows)
				packed = append(packed, t)
			}
			if t, ok := ExtractDeviations(sheet.Table); ok {
				outcome.DeviationRows = len(t.Rows)
				deviations = append(deviations, t)
			}
			logger.Debug("sheet processed",
				"file", outcome.File,
				"sheet", outcome.Sheet,
				"rows", len(sheet.Table.Rows),
				"packed", outcome.PackedRows,
				"deviations", outcome.DeviationRows,
			)
			res.Outcomes = append(res.Outcomes, outcome)
		}
	}

	res.Packed = Concat(packed)
	res.Deviations = Concat(deviations)
	logger.Info("run assembled",
		"files", len(files),
		"packed", len(res.Packed.Rows),
		"deviations", len(res.Deviations.Rows),
	)
	return res
}
