// Package verbs conjugates a base verb into the action/activity/event triple
// used to label noun verbs and the events they emit.
package verbs

import "strings"

// Conjugation is the (action, activity, event) triple plus the derived
// reverse-relation names used to label inverse relationship edges.
type Conjugation struct {
	Action    string
	Activity  string
	Event     string
	ReverseBy string
	ReverseAt string
}

var vowels = map[byte]bool{'a': true, 'e': true, 'i': true, 'o': true, 'u': true}

// irregular holds verbs whose activity/event forms don't follow the regular
// suffix rules below.
var irregular = map[string][2]string{
	"create": {"creating", "created"},
	"update": {"updating", "updated"},
	"delete": {"deleting", "deleted"},
	"close":  {"closing", "closed"},
	"qualify": {"qualifying", "qualified"},
	"begin":  {"beginning", "begun"},
	"send":   {"sending", "sent"},
	"buy":    {"buying", "bought"},
	"cancel": {"cancelling", "cancelled"},
	"lose":   {"losing", "lost"},
	"win":    {"winning", "won"},
	"pay":    {"paying", "paid"},
	"set":    {"setting", "set"},
	"get":    {"getting", "gotten"},
	"make":   {"making", "made"},
	"take":   {"taking", "taken"},
	"give":   {"giving", "given"},
	"do":     {"doing", "done"},
	"go":     {"going", "gone"},
	"have":   {"having", "had"},
}

// Conjugate derives the full conjugation for a lowercase base verb.
func Conjugate(base string) Conjugation {
	base = strings.ToLower(strings.TrimSpace(base))

	var activity, event string
	if forms, ok := irregular[base]; ok {
		activity, event = forms[0], forms[1]
	} else {
		activity = gerund(base)
		event = pastParticiple(base)
	}

	return Conjugation{
		Action:    base,
		Activity:  activity,
		Event:     event,
		ReverseBy: event + "By",
		ReverseAt: event + "At",
	}
}

func gerund(base string) string {
	switch {
	case strings.HasSuffix(base, "ee"):
		return base + "ing"
	case strings.HasSuffix(base, "ie"):
		return base[:len(base)-2] + "ying"
	case strings.HasSuffix(base, "e"):
		return base[:len(base)-1] + "ing"
	case isCVC(base) && len(base) <= 6:
		return base + string(base[len(base)-1]) + "ing"
	default:
		return base + "ing"
	}
}

func pastParticiple(base string) string {
	switch {
	case strings.HasSuffix(base, "e"):
		return base + "d"
	case endsInConsonantY(base):
		return base[:len(base)-1] + "ied"
	case isCVC(base) && len(base) <= 6:
		return base + string(base[len(base)-1]) + "ed"
	default:
		return base + "ed"
	}
}

func endsInConsonantY(s string) bool {
	if !strings.HasSuffix(s, "y") || len(s) < 2 {
		return false
	}
	return !vowels[s[len(s)-2]]
}

// isCVC reports whether s ends in consonant-vowel-consonant, excluding a
// final w/x/y (which don't double under English spelling rules).
func isCVC(s string) bool {
	if len(s) < 3 {
		return false
	}
	c1, v, c2 := s[len(s)-3], s[len(s)-2], s[len(s)-1]
	if vowels[c1] || !vowels[v] || vowels[c2] {
		return false
	}
	if c2 == 'w' || c2 == 'x' || c2 == 'y' {
		return false
	}
	return true
}
