// Package redact masks personal data and credentials before they reach logs
// or audit metadata.
package redact

import "strings"

// Email keeps the first two runes of the local part and the whole domain.
func Email(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***"
	}
	r := []rune(local)
	if len(r) > 2 {
		return string(r[:2]) + "***@" + domain
	}
	return "***@" + domain
}

// Token never reveals any part of a bearer token.
func Token() string { return "[REDACTED_TOKEN]" }

// Code never reveals any part of a one-time code.
func Code() string { return "[REDACTED_CODE]" }

// ID shortens an identifier to a correlatable prefix.
func ID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "…"
}
