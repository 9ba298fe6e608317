package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmalldedede/agentbox/internal/model"
	"github.com/tmalldedede/agentbox/internal/task"
)

func TestRedact_NilRedactorPassesThrough(t *testing.T) {
	records := []task.Record{{"answer": "reach me at a@b.com"}}
	out, cleaned := Redact(nil, records)
	require.Equal(t, 0, cleaned)
	require.Equal(t, records, out)
}

func TestRedact_MarksChangedRecords(t *testing.T) {
	records := []task.Record{
		{"answer": "reach me at a@b.com"},
		{"answer": "no pii here"},
	}
	out, cleaned := Redact(model.NewRegexRedactor(), records)
	require.Equal(t, 1, cleaned)
	require.Equal(t, true, out[0][task.MarkerPIICleaned])
	require.NotContains(t, out[0]["answer"], "a@b.com")
	require.Nil(t, out[1][task.MarkerPIICleaned])
}

func TestRedact_PassthroughRedactorNeverMarks(t *testing.T) {
	records := []task.Record{{"answer": "a@b.com"}}
	out, cleaned := Redact(model.PassthroughRedactor{}, records)
	require.Equal(t, 0, cleaned)
	require.Equal(t, "a@b.com", out[0]["answer"])
}
