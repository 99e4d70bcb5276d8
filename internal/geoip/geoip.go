package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP resolves IP addresses to ISO country codes using a MaxMind database,
// or a JSON list of CIDR ranges when the file is not a MaxMind database.
type GeoIP struct {
	db       *geoip2.Reader
	fallback []cidrCountry
}

type cidrCountry struct {
	net     *net.IPNet
	country string
}

// Init opens the database located at path. A JSON file of the form
// [{"net":"1.2.3.0/24","country":"US"}] is accepted as a lightweight fallback.
func Init(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: db}, nil
	}
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	g, jerr := FromJSON(data)
	if jerr != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return g, nil
}

// FromJSON builds a GeoIP backed only by CIDR ranges. Invalid ranges are skipped.
func FromJSON(data []byte) (*GeoIP, error) {
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse geoip ranges: %w", err)
	}
	g := &GeoIP{}
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e.Net); err == nil {
			g.fallback = append(g.fallback, cidrCountry{net: n, country: strings.ToUpper(e.Country)})
		}
	}
	return g, nil
}

// Country returns the ISO country code for the IP, or "" when it is unknown.
func (g *GeoIP) Country(ip net.IP) string {
	if g == nil || ip == nil {
		return ""
	}
	if g.db != nil {
		if rec, err := g.db.Country(ip); err == nil && rec.Country.IsoCode != "" {
			return rec.Country.IsoCode
		}
	}
	for _, r := range g.fallback {
		if r.net.Contains(ip) {
			return r.country
		}
	}
	return ""
}

// Close releases resources associated with the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
