package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strconv"
	"strings"

	"github.com/MrEthical07/goSession/internal"
)

const version = "v1"

// ClientContext describes the caller at issuance or verification time.
// Subnet wins over IP when both are set; IP is reduced to its prefix.
type ClientContext struct {
	Subnet    string
	IP        string
	UserAgent string
}

// Config controls prefix tolerance and the optional keying secret.
type Config struct {
	IPv4PrefixOctets int
	IPv6PrefixGroups int
	Key              []byte
}

// Generator derives fingerprints deterministically from a ClientContext.
type Generator struct {
	v4Octets int
	v6Groups int
	key      []byte
}

// DefaultConfig keeps the first two IPv4 octets and the first three IPv6 groups.
func DefaultConfig() Config {
	return Config{IPv4PrefixOctets: 2, IPv6PrefixGroups: 3}
}

// NewGenerator clamps the prefix widths into their valid ranges.
func NewGenerator(cfg Config) *Generator {
	g := &Generator{
		v4Octets: cfg.IPv4PrefixOctets,
		v6Groups: cfg.IPv6PrefixGroups,
		key:      append([]byte(nil), cfg.Key...),
	}
	if g.v4Octets <= 0 || g.v4Octets > 4 {
		g.v4Octets = 2
	}
	if g.v6Groups <= 0 || g.v6Groups > 8 {
		g.v6Groups = 3
	}
	return g
}

// Generate returns the hex fingerprint for c, or "" when c carries no
// network or user-agent signal at all.
func (g *Generator) Generate(c *ClientContext) string {
	if c == nil {
		return ""
	}
	subnet := g.Subnet(c)
	ua := strings.TrimSpace(c.UserAgent)
	if subnet == "" && ua == "" {
		return ""
	}

	material := version + "|" + subnet + "|" + ua
	var sum []byte
	if len(g.key) > 0 {
		mac := hmac.New(sha256.New, g.key)
		_, _ = mac.Write([]byte(material))
		sum = mac.Sum(nil)
	} else {
		digest := sha256.Sum256([]byte(material))
		sum = digest[:]
	}
	return hex.EncodeToString(sum)
}

// Subnet returns the network prefix that participates in the fingerprint.
func (g *Generator) Subnet(c *ClientContext) string {
	if c == nil {
		return ""
	}
	if s := strings.TrimSpace(c.Subnet); s != "" {
		return s
	}
	return g.prefix(strings.TrimSpace(c.IP))
}

func (g *Generator) prefix(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		// Unparseable input still binds, verbatim.
		return ip
	}
	addr = addr.Unmap()

	if addr.Is4() {
		b := addr.As4()
		parts := make([]string, 0, g.v4Octets)
		for i := 0; i < g.v4Octets; i++ {
			parts = append(parts, strconv.Itoa(int(b[i])))
		}
		return strings.Join(parts, ".")
	}

	b := addr.As16()
	parts := make([]string, 0, g.v6Groups)
	for i := 0; i < g.v6Groups; i++ {
		group := uint16(b[2*i])<<8 | uint16(b[2*i+1])
		parts = append(parts, strconv.FormatUint(uint64(group), 16))
	}
	return strings.Join(parts, ":")
}

// Matches applies the binding policy: when either side is absent the check
// passes, otherwise the fingerprints must be identical. The comparison is
// constant time.
func Matches(stored, current string) bool {
	if stored == "" || current == "" {
		return true
	}
	return internal.ConstantTimeEqual(stored, current)
}
