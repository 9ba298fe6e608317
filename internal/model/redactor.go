package model

import "regexp"

// RegexRedactor implements Redactor with a fixed set of PII patterns
// (emails, phone numbers, SSN-shaped sequences). No PII-scrubbing library
// appears anywhere in the corpus, so this stays on stdlib regexp rather
// than inventing a dependency that isn't grounded in any example repo.
type RegexRedactor struct {
	patterns map[string]*regexp.Regexp
}

func NewRegexRedactor() *RegexRedactor {
	return &RegexRedactor{
		patterns: map[string]*regexp.Regexp{
			"email": regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
			"phone": regexp.MustCompile(`\b(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
			"ssn":   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		},
	}
}

func (r *RegexRedactor) Redact(record map[string]interface{}) (map[string]interface{}, bool) {
	changed := false
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		redacted := s
		for kind, pattern := range r.patterns {
			if pattern.MatchString(redacted) {
				redacted = pattern.ReplaceAllString(redacted, "["+kind+"_redacted]")
			}
		}
		if redacted != s {
			changed = true
		}
		out[k] = redacted
	}
	return out, changed
}
