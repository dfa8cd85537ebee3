package goSession

import (
	"context"
	"strings"
)

// clientKey indexes request-scoped client values stored on a context.
type clientKey uint8

const (
	keyClientIP clientKey = iota + 1
	keyUserAgent
)

// WithClientIP attaches the caller's IP address to ctx. Audit events carry it
// and ClientContextFrom reads it back for fingerprint binding.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

// WithUserAgent attaches the caller's User-Agent to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

// ClientContextFrom returns the client attached with WithClientIP and
// WithUserAgent, or nil when ctx carries neither. A nil client skips
// fingerprint binding.
func ClientContextFrom(ctx context.Context) *ClientContext {
	c := ClientContext{
		IP:        clientValue(ctx, keyClientIP),
		UserAgent: clientValue(ctx, keyUserAgent),
	}
	if c.IP == "" && c.UserAgent == "" {
		return nil
	}
	return &c
}

func clientValue(ctx context.Context, key clientKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return strings.TrimSpace(v)
}
