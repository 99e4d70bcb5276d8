package models

// BidRequest describes a single ad placement opportunity. It is a trimmed-down
// shape of an OpenRTB bid request carrying only what the auction needs.
type BidRequest struct {
	ID     string `json:"id"`     // Caller-supplied request identifier, echoed in the response.
	ZoneID string `json:"zoneId"` // The ad placement slot being filled.
	Site   Site   `json:"site"`
	Device Device `json:"device"`
	// Floor is the minimum acceptable price. A nil floor means zero.
	Floor *float64 `json:"floor,omitempty"`
}

// Site is the requesting page context.
type Site struct {
	Domain string `json:"domain"`
	Page   string `json:"page"`
}

// Device describes the viewer's device. Type is derived from UserAgent and Geo
// from IP by the HTTP layer when the caller leaves them empty.
type Device struct {
	Type      string `json:"type"`
	UserAgent string `json:"userAgent"`
	IP        string `json:"ip"`
	Geo       *Geo   `json:"geo,omitempty"`
}

// Geo carries the viewer's location.
type Geo struct {
	Country string `json:"country"`
}

// EffectiveFloor returns the request floor, or 0 when none was supplied.
func (r *BidRequest) EffectiveFloor() float64 {
	if r.Floor == nil {
		return 0
	}
	return *r.Floor
}

// Country returns the geo country. ok is false when the request carries no geo.
func (r *BidRequest) Country() (country string, ok bool) {
	if r.Device.Geo == nil {
		return "", false
	}
	return r.Device.Geo.Country, true
}
