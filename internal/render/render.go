// Package render substitutes {{key}} placeholders in campaign subjects and
// bodies with per-contact values.
package render

import (
	"strings"

	"EmailBlaster/internal/models"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Render replaces every {{key}} in text in a single left-to-right pass.
// Keys resolve against the fixed contact fields first (firstName, lastName,
// email, company), then the contact metadata, then unsubscribeUrl. Unknown
// keys are left untouched and substituted values are never rescanned.
// A key never contains "{{": a stray opener is copied through and the
// placeholder starts at the last opener before the closing braces.
func Render(text string, c models.Contact, unsubscribeURL string) string {
	if !strings.Contains(text, openDelim) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	rest := text
	for {
		i := strings.Index(rest, openDelim)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		j := strings.Index(rest[i+len(openDelim):], closeDelim)
		if j < 0 {
			b.WriteString(rest)
			break
		}
		closeAt := i + len(openDelim) + j
		start := strings.LastIndex(rest[:closeAt], openDelim)
		key := rest[start+len(openDelim) : closeAt]
		end := closeAt + len(closeDelim)

		b.WriteString(rest[:start])
		if v, ok := lookup(key, c, unsubscribeURL); ok {
			b.WriteString(v)
		} else {
			b.WriteString(rest[start:end])
		}
		rest = rest[end:]
	}

	return b.String()
}

func lookup(key string, c models.Contact, unsubscribeURL string) (string, bool) {
	switch key {
	case "firstName":
		return c.FirstName, true
	case "lastName":
		return c.LastName, true
	case "email":
		return c.Email, true
	case "company":
		return c.Company, true
	}
	if v, ok := c.Metadata[key]; ok {
		return v, true
	}
	if key == "unsubscribeUrl" {
		return unsubscribeURL, true
	}
	return "", false
}
