package contacts

import (
	"regexp"
	"strings"
)

// Suggestion pre-fills the link form. It is a guess from free text and is
// never written anywhere by this package.
type Suggestion struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (s Suggestion) Empty() bool { return s.Name == "" && s.Email == "" }

var (
	introRe = regexp.MustCompile(`(?i:\bthis is|\bmy name is|\bmy name's)\s+([A-Z][a-zA-Z'\-]+(?:\s+[A-Z][a-zA-Z'\-]+)?)`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// Suggest extracts a candidate name ("this is Dana Reyes", "my name is
// Dana") and the first email address from text.
func Suggest(text string) Suggestion {
	var s Suggestion
	if m := introRe.FindStringSubmatch(text); m != nil {
		s.Name = strings.TrimSpace(m[1])
	}
	if m := emailRe.FindString(text); m != "" {
		s.Email = strings.ToLower(strings.TrimRight(m, "."))
	}
	return s
}

// SuggestFromMessages scans bodies oldest first and keeps the first name and
// the first email found, possibly from different messages.
func SuggestFromMessages(bodies []string) Suggestion {
	var out Suggestion
	for _, b := range bodies {
		s := Suggest(b)
		if out.Name == "" {
			out.Name = s.Name
		}
		if out.Email == "" {
			out.Email = s.Email
		}
		if out.Name != "" && out.Email != "" {
			break
		}
	}
	return out
}
