package task

import "strings"

// Record is the unit processed by the pipeline: an open property bag of
// string keys to arbitrary JSON-compatible values. A small set of keys are
// recognized (question, answer, think-variants, reasoning-variants) but
// none are required, and arbitrary passthrough keys survive every stage.
type Record map[string]interface{}

var (
	questionKeys = []string{"question"}
	answerKeys   = []string{"answer"}
	reasoningKeys = []string{"reasoning", "rationale", "explanation", "steps", "cot", "chain_of_thought"}
)

// firstString returns the first present key among candidates whose value is
// a non-empty string.
func (r Record) firstString(candidates []string) (string, bool) {
	for _, k := range candidates {
		if v, ok := r[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// Question returns the record's question field, if present.
func (r Record) Question() (string, bool) { return r.firstString(questionKeys) }

// Answer returns the record's answer field, if present.
func (r Record) Answer() (string, bool) { return r.firstString(answerKeys) }

// HasReasoning reports whether any recognized reasoning key is present with
// a non-empty string value.
func (r Record) HasReasoning() bool {
	_, ok := r.firstString(reasoningKeys)
	return ok
}

// HasThinkKey reports whether the record has a key equal to "think",
// ignoring case.
func (r Record) HasThinkKey() bool {
	for k := range r {
		if strings.EqualFold(k, "think") {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy of the record so markers can be added
// without mutating the caller's original; stage inputs stay immutable.
func (r Record) Clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// WithMarker returns a clone of r with the named marker set to true.
func (r Record) WithMarker(marker string) Record {
	c := r.Clone()
	c[marker] = true
	return c
}

// Marked reports whether r carries the named marker key set to true.
func (r Record) Marked(marker string) bool {
	v, ok := r[marker]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

const (
	MarkerOptimized  = "_optimized"
	MarkerGenerated  = "_generated"
	MarkerCorrected  = "_corrected"
	MarkerPIICleaned = "_pii_cleaned"
)
