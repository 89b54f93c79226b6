// Package phone turns the many ways a North American number gets typed into
// one comparable key. Every function here is pure and never fails: dirty
// input yields Unmatchable rather than an error.
package phone

import (
	"fmt"
	"strings"
)

// Key is a canonical 10-digit number, or Unmatchable.
type Key string

// Unmatchable is returned for input that cannot be reduced to 10 digits.
// It never equals a real key, so dirty rows group by their raw string instead.
const Unmatchable Key = ""

// Normalize strips everything but digits and drops a leading country code 1
// from 11-digit input. Anything that does not end up as exactly 10 digits is
// Unmatchable.
func Normalize(raw string) Key {
	d := Digits(raw)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return Unmatchable
	}
	return Key(d)
}

// Digits returns raw with every non-digit removed.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Variants is the small set of stored spellings that should match raw:
// its digits, plus the same digits with a leading 1 added or removed.
func Variants(raw string) []string {
	d := Digits(raw)
	if d == "" {
		return nil
	}
	out := []string{d}
	switch {
	case len(d) == 11 && d[0] == '1':
		out = append(out, d[1:])
	case len(d) == 10:
		out = append(out, "1"+d)
	}
	return out
}

// Same reports whether a and b normalize to the same matchable key.
func Same(a, b string) bool {
	ka := Normalize(a)
	return ka.Matchable() && ka == Normalize(b)
}

func (k Key) Matchable() bool { return k != Unmatchable }

func (k Key) String() string { return string(k) }

// E164 renders the key for dialing and sending ("+1XXXXXXXXXX").
func (k Key) E164() string {
	if !k.Matchable() {
		return ""
	}
	return "+1" + string(k)
}

// Display renders "(XXX) XXX-XXXX".
func (k Key) Display() string {
	if !k.Matchable() {
		return ""
	}
	s := string(k)
	return fmt.Sprintf("(%s) %s-%s", s[0:3], s[3:6], s[6:])
}

// Variants returns the digit spellings stored rows may use for this key.
func (k Key) Variants() []string {
	if !k.Matchable() {
		return nil
	}
	return []string{string(k), "1" + string(k)}
}

// GroupKey is the grouping identity for a raw phone: its canonical key when
// matchable, otherwise the trimmed raw string so unmatchable rows stay apart.
// A group key passed back in maps to itself.
func GroupKey(raw string) string {
	if k := Normalize(raw); k.Matchable() {
		return string(k)
	}
	return "raw:" + RawSpelling(raw)
}

// RawSpelling is the stored spelling behind an unmatchable group key, with
// the "raw:" prefix removed if present.
func RawSpelling(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, "raw:"); ok && !Normalize(rest).Matchable() {
		return strings.TrimSpace(rest)
	}
	return s
}
