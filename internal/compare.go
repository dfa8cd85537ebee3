package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ConstantTimeEqual compares two strings without leaking the position of the
// first differing byte. Unequal lengths still return false.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// EqualHash compares two digests in constant time. Empty inputs never match.
func EqualHash(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// KeyedHash returns HMAC-SHA256(key, parts...) with a zero byte between parts
// so that ("ab","c") and ("a","bc") never collide.
func KeyedHash(key []byte, parts ...string) []byte {
	mac := hmac.New(sha256.New, key)
	for i, p := range parts {
		if i > 0 {
			_, _ = mac.Write([]byte{0})
		}
		_, _ = mac.Write([]byte(p))
	}
	return mac.Sum(nil)
}

// DeriveKey expands secret into a 32-byte subkey bound to info.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
