package pipeline

import (
	"github.com/tmalldedede/agentbox/internal/model"
	"github.com/tmalldedede/agentbox/internal/task"
)

// Redact runs Stage 4: apply the redactor to every verified
// record and mark any changed record with _pii_cleaned. This stage never
// drops records, only rewrites them, so it commits as a single batch.
func Redact(redactor model.Redactor, records []task.Record) ([]task.Record, int) {
	out := make([]task.Record, len(records))
	cleaned := 0
	for i, rec := range records {
		if redactor == nil {
			out[i] = rec
			continue
		}
		cleanedRecord, changed := redactor.Redact(rec)
		r := task.Record(cleanedRecord)
		if changed {
			r = r.WithMarker(task.MarkerPIICleaned)
			cleaned++
		}
		out[i] = r
	}
	return out, cleaned
}
