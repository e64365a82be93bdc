package ipinfo

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/enrich/resolver"
)

// ASNInfo describes the autonomous system announcing an address.
type ASNInfo struct {
	ASN         string `json:"asn"`
	CIDR        string `json:"cidr"`
	Country     string `json:"country"`
	Description string `json:"description"`
}

// ASNSource resolves the origin AS of an address.
type ASNSource interface {
	LookupASN(ctx context.Context, addr netip.Addr) (ASNInfo, error)
}

// CymruSource queries the Team Cymru IP-to-ASN DNS zones.
type CymruSource struct {
	dns resolver.Resolver
}

// NewCymruSource creates a CymruSource over r.
func NewCymruSource(r resolver.Resolver) *CymruSource {
	return &CymruSource{dns: r}
}

// LookupASN returns the first origin announcement for addr and its AS description.
func (c *CymruSource) LookupASN(ctx context.Context, addr netip.Addr) (ASNInfo, error) {
	answers, err := c.dns.Lookup(ctx, originQuery(addr), model.RecordTXT)
	if err != nil {
		return ASNInfo{}, fmt.Errorf("asn lookup %s: %w", addr, err)
	}
	if len(answers) == 0 {
		return ASNInfo{}, fmt.Errorf("asn lookup %s: no origin announced", addr)
	}

	// "13335 | 104.16.0.0/13 | US | arin | 2014-03-28"
	fields := splitPipes(answers[0].Value)
	if len(fields) < 3 {
		return ASNInfo{}, fmt.Errorf("asn lookup %s: malformed answer %q", addr, answers[0].Value)
	}
	// multi-origin prefixes list several AS numbers; the first is kept
	asns := strings.Fields(fields[0])
	if len(asns) == 0 {
		return ASNInfo{}, fmt.Errorf("asn lookup %s: malformed answer %q", addr, answers[0].Value)
	}
	asn := asns[0]
	if _, err := strconv.ParseUint(asn, 10, 32); err != nil {
		return ASNInfo{}, fmt.Errorf("asn lookup %s: malformed asn %q", addr, asn)
	}
	info := ASNInfo{ASN: asn, CIDR: fields[1], Country: fields[2]}

	// "13335 | US | arin | 2010-07-14 | CLOUDFLARENET - Cloudflare, Inc., US"
	desc, err := c.dns.Lookup(ctx, "AS"+asn+".asn.cymru.com", model.RecordTXT)
	if err == nil && len(desc) > 0 {
		if f := splitPipes(desc[0].Value); len(f) >= 5 {
			info.Description = f[4]
		}
	}
	return info, nil
}

func originQuery(addr netip.Addr) string {
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.%d.origin.asn.cymru.com", b[3], b[2], b[1], b[0])
	}
	b := addr.As16()
	var sb strings.Builder
	for i := len(b) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%x.%x.", b[i]&0x0f, b[i]>>4)
	}
	sb.WriteString("origin6.asn.cymru.com")
	return sb.String()
}

func splitPipes(s string) []string {
	parts := strings.Split(strings.Trim(s, `"`), "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
