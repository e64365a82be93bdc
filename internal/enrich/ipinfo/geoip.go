package ipinfo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sort"
	"strings"
)

// GeoTable maps addresses to country and continent codes using sorted, non-overlapping ranges.
type GeoTable struct {
	ranges []geoRange
}

type geoRange struct {
	start, end         netip.Addr
	country, continent string
}

// Location is the result of a GeoTable lookup.
type Location struct {
	Country   string
	Continent string
}

// LoadGeoFile reads a range CSV from disk.
func LoadGeoFile(path string) (*GeoTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip csv: %w", err)
	}
	defer f.Close()
	return LoadGeoCSV(f)
}

// LoadGeoCSV parses rows of start_ip,end_ip,country,continent. The header row is required.
func LoadGeoCSV(r io.Reader) (*GeoTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read geoip header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"start_ip", "end_ip", "country", "continent"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("geoip csv missing column %q", col)
		}
	}

	t := &GeoTable{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read geoip line %d: %w", line, err)
		}
		field := func(name string) string {
			i := idx[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		start, err := netip.ParseAddr(field("start_ip"))
		if err != nil {
			return nil, fmt.Errorf("geoip line %d: %w", line, err)
		}
		end, err := netip.ParseAddr(field("end_ip"))
		if err != nil {
			return nil, fmt.Errorf("geoip line %d: %w", line, err)
		}
		t.ranges = append(t.ranges, geoRange{
			start:     start.Unmap(),
			end:       end.Unmap(),
			country:   field("country"),
			continent: field("continent"),
		})
	}
	sort.Slice(t.ranges, func(i, j int) bool { return t.ranges[i].start.Less(t.ranges[j].start) })
	return t, nil
}

// Len returns the number of ranges.
func (t *GeoTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ranges)
}

// Lookup finds the range containing addr.
func (t *GeoTable) Lookup(addr netip.Addr) (Location, bool) {
	if t == nil || len(t.ranges) == 0 {
		return Location{}, false
	}
	addr = addr.Unmap()
	// first range starting after addr; the candidate is the one before it
	i := sort.Search(len(t.ranges), func(i int) bool { return addr.Less(t.ranges[i].start) })
	if i == 0 {
		return Location{}, false
	}
	r := t.ranges[i-1]
	if r.end.Less(addr) || r.start.BitLen() != addr.BitLen() {
		return Location{}, false
	}
	return Location{Country: r.country, Continent: r.continent}, true
}
