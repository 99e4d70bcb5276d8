package logic

import (
	"net"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/rtbengine/internal/geoip"
	"github.com/patrickwarner/rtbengine/internal/models"
)

// Rejection reasons reported by EligibilityReason, in evaluation order.
const (
	ReasonStatus  = "status"
	ReasonBudget  = "budget"
	ReasonBalance = "balance"
	ReasonDevice  = "device"
	ReasonCountry = "country"
	ReasonPage    = "page"
)

// IsEligible reports whether a campaign may bid on the request. It is a pure
// predicate: every check is a field comparison or a set lookup.
func IsEligible(c *models.Campaign, req *models.BidRequest) bool {
	return EligibilityReason(c, req) == ""
}

// EligibilityReason returns the first failing eligibility check for the campaign,
// or "" when the campaign is eligible.
func EligibilityReason(c *models.Campaign, req *models.BidRequest) string {
	if c.Status != models.StatusActive {
		return ReasonStatus
	}
	// A campaign exactly at budget has no headroom left.
	if !(c.TotalSpent < c.Budget) {
		return ReasonBudget
	}
	if c.Advertiser.Balance <= 0 {
		return ReasonBalance
	}
	if !c.TargetDevices.Matches(req.Device.Type) {
		return ReasonDevice
	}
	if len(c.TargetCountries) > 0 {
		country, ok := req.Country()
		// Country targeting fails closed when the request carries no geo.
		if !ok || !c.TargetCountries.Contains(country) {
			return ReasonCountry
		}
	}
	if !c.TargetPages.Matches(req.Site.Page) {
		return ReasonPage
	}
	return ""
}

// ResolveDeviceType maps a raw User-Agent string to one of "desktop", "mobile",
// "tablet" or "other" using the uasurfer library.
func ResolveDeviceType(uaString string) string {
	u := uasurfer.Parse(uaString)
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	default:
		return "other"
	}
}

// EnrichRequest fills the device type and geo when the caller left them empty,
// using the User-Agent and IP address carried on the request. Values supplied by
// the caller always win. It runs before the auction so the engine stays pure.
func EnrichRequest(g *geoip.GeoIP, req *models.BidRequest) {
	if req.Device.Type == "" && req.Device.UserAgent != "" {
		req.Device.Type = ResolveDeviceType(req.Device.UserAgent)
	}
	req.Device.Type = strings.ToLower(req.Device.Type)

	if req.Device.Geo != nil || g == nil {
		return
	}
	ip := net.ParseIP(strings.TrimSpace(req.Device.IP))
	if ip == nil {
		return
	}
	if country := g.Country(ip); country != "" {
		req.Device.Geo = &models.Geo{Country: country}
	}
}
