package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidJTI reports a token identifier that is not a canonical ULID.
var ErrInvalidJTI = errors.New("invalid jti")

// IDGenerator issues ULID token identifiers from a monotonic entropy source.
// Identifiers minted within the same millisecond still sort strictly.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator builds a generator over crypto/rand.
func NewIDGenerator() *IDGenerator {
	return NewIDGeneratorFrom(rand.Reader)
}

// NewIDGeneratorFrom builds a generator over the given entropy source.
func NewIDGeneratorFrom(r io.Reader) *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(r, 0)}
}

// NewAt returns a fresh identifier stamped with t.
func (g *IDGenerator) NewAt(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), g.entropy)
	if err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}
	return id.String(), nil
}

// JTITime extracts the millisecond issue time embedded in a ULID identifier.
func JTITime(jti string) (time.Time, error) {
	id, err := ulid.ParseStrict(strings.TrimSpace(jti))
	if err != nil {
		return time.Time{}, ErrInvalidJTI
	}
	return ulid.Time(id.Time()).UTC(), nil
}

// NewOTP returns a uniformly distributed decimal code of the given length.
// Each digit is drawn independently with rand.Int so no modulo bias exists.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}
