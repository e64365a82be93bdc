// Package ipinfo annotates addresses with their origin AS and a coarse location.
package ipinfo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/netip"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

// AnnotatorOptions configures an Annotator.
type AnnotatorOptions struct {
	ASN ASNSource
	Geo *GeoTable
	// Shared is an optional cache of ASN answers shared between processes.
	Shared     core.CacheRepository
	SharedTTL  time.Duration
	ASNEntries int
	GeoEntries int
	Logger     *slog.Logger
}

// Annotator combines ASN and GeoIP lookups behind in-process LRU caches.
type Annotator struct {
	asn       ASNSource
	geo       *GeoTable
	shared    core.CacheRepository
	sharedTTL time.Duration
	asnCache  *lru.Cache[netip.Addr, ASNInfo]
	geoCache  *lru.Cache[netip.Addr, Location]
	logger    *slog.Logger
}

// NewAnnotator creates an Annotator. A nil ASN source or GeoTable disables that half.
func NewAnnotator(opts AnnotatorOptions) (*Annotator, error) {
	if opts.ASNEntries <= 0 {
		opts.ASNEntries = 4096
	}
	if opts.GeoEntries <= 0 {
		opts.GeoEntries = 10000
	}
	asnCache, err := lru.New[netip.Addr, ASNInfo](opts.ASNEntries)
	if err != nil {
		return nil, err
	}
	geoCache, err := lru.New[netip.Addr, Location](opts.GeoEntries)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{
		asn:       opts.ASN,
		geo:       opts.Geo,
		shared:    opts.Shared,
		sharedTTL: opts.SharedTTL,
		asnCache:  asnCache,
		geoCache:  geoCache,
		logger:    logger.With("component", "ipinfo"),
	}, nil
}

// Annotate returns what is known about ip. Lookup failures are reported in IPInfo.Error.
func (a *Annotator) Annotate(ctx context.Context, ip string) model.IPInfo {
	info := model.IPInfo{IP: ip}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		info.Error = "invalid address: " + ip
		return info
	}
	addr = addr.Unmap()

	if loc, ok := a.location(addr); ok {
		info.Country, info.Continent = loc.Country, loc.Continent
	}

	if a.asn == nil {
		return info
	}
	asn, err := a.lookupASN(ctx, addr)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.ASN = asn.ASN
	info.ASNCIDR = asn.CIDR
	info.ASNCountry = asn.Country
	info.ASNDescription = asn.Description
	return info
}

func (a *Annotator) location(addr netip.Addr) (Location, bool) {
	if a.geo == nil {
		return Location{}, false
	}
	if loc, ok := a.geoCache.Get(addr); ok {
		return loc, true
	}
	loc, ok := a.geo.Lookup(addr)
	if ok {
		a.geoCache.Add(addr, loc)
	}
	return loc, ok
}

// SharedASNKey is the shared cache key holding the ASN answer for addr.
func SharedASNKey(addr netip.Addr) string {
	return "asn:" + addr.String()
}

func (a *Annotator) lookupASN(ctx context.Context, addr netip.Addr) (ASNInfo, error) {
	if v, ok := a.asnCache.Get(addr); ok {
		return v, nil
	}
	key := SharedASNKey(addr)
	if a.shared != nil {
		if raw, err := a.shared.Get(ctx, key); err != nil {
			a.logger.WarnContext(ctx, "shared asn cache read failed", "ip", addr.String(), "error", err)
		} else if raw != nil {
			var v ASNInfo
			if json.Unmarshal(raw, &v) == nil {
				a.asnCache.Add(addr, v)
				return v, nil
			}
		}
	}

	v, err := a.asn.LookupASN(ctx, addr)
	if err != nil {
		return ASNInfo{}, err
	}
	a.asnCache.Add(addr, v)
	if a.shared != nil {
		if raw, err := json.Marshal(v); err == nil {
			if err := a.shared.Set(ctx, key, raw, a.sharedTTL); err != nil {
				a.logger.WarnContext(ctx, "shared asn cache write failed", "ip", addr.String(), "error", err)
			}
		}
	}
	return v, nil
}
