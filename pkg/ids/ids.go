// Package ids mints opaque short identifiers for kernel records.
//
// Grounded on the request-id generator in system/events/router.go:
// crypto/rand bytes turned into a short, URL-safe string. Here the byte
// stream is mapped onto a fixed alphabet instead of hex-encoded, since the
// identifiers are user-facing (entity/event/subscription/hook ids) and a
// denser alphabet keeps them short.
package ids

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	// EntitySuffixLen is the length of the random suffix on entity ids.
	EntitySuffixLen = 10
	// LongSuffixLen is the length of the random suffix on event, subscription,
	// hook, and dispatch ids.
	LongSuffixLen = 12
)

// New returns a random string of length n drawn from a fixed 62-character
// alphabet (A-Z, a-z, 0-9), one random byte modulo 62 per character, so the
// first 8 characters (A-H) are slightly more likely than the rest. It never fails: any crypto/rand
// read error is treated as fatal to the process.
func New(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("ids: crypto/rand unavailable: %v", err))
	}
	out := make([]byte, n)
	for i, v := range b {
		out[i] = alphabet[int(v)%len(alphabet)]
	}
	return string(out)
}

// Entity mints an entity id of the shape "{type-lowercased}_{short-id}".
func Entity(lowercasedType string) string {
	return fmt.Sprintf("%s_%s", lowercasedType, New(EntitySuffixLen))
}

// Event mints an event id ("evt_...").
func Event() string { return "evt_" + New(LongSuffixLen) }

// Subscription mints a subscription id ("sub_...").
func Subscription() string { return "sub_" + New(LongSuffixLen) }

// IntegrationHook mints an integration hook id ("ihook_...").
func IntegrationHook() string { return "ihook_" + New(LongSuffixLen) }

// Dispatch mints a dispatch-log entry id ("disp_...").
func Dispatch() string { return "disp_" + New(LongSuffixLen) }

// BuiltinHook formats the fixed id for a built-in (non-deletable) integration
// hook: "builtin:{SERVICE}:{method}".
func BuiltinHook(service, method string) string {
	return fmt.Sprintf("builtin:%s:%s", service, method)
}
