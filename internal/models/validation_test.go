package models

import (
	"errors"
	"strings"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

func TestValidateBidRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *BidRequest
		wantErr bool
	}{
		{"valid", &BidRequest{ID: "r1", ZoneID: "z1"}, false},
		{"valid with floor", &BidRequest{ID: "r1", ZoneID: "z1", Floor: floatPtr(0.5)}, false},
		{"nil", nil, true},
		{"missing id", &BidRequest{ZoneID: "z1"}, true},
		{"missing zone", &BidRequest{ID: "r1"}, true},
		{"negative floor", &BidRequest{ID: "r1", ZoneID: "z1", Floor: floatPtr(-1)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateBidRequest(tc.req)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBidRequest_EffectiveFloor(t *testing.T) {
	r := BidRequest{}
	if r.EffectiveFloor() != 0 {
		t.Fatalf("expected zero floor, got %f", r.EffectiveFloor())
	}
	r.Floor = floatPtr(0.25)
	if r.EffectiveFloor() != 0.25 {
		t.Fatalf("expected 0.25, got %f", r.EffectiveFloor())
	}
}

func TestValidateCampaign(t *testing.T) {
	tests := []struct {
		name    string
		c       Campaign
		wantErr bool
	}{
		{"valid", Campaign{ID: "c1", Ads: []Ad{{ID: "a1", Weight: 0}}}, false},
		{"missing id", Campaign{}, true},
		{"negative bid", Campaign{ID: "c1", BidAmount: -0.1}, true},
		{"negative budget", Campaign{ID: "c1", Budget: -1}, true},
		{"negative weight", Campaign{ID: "c1", Ads: []Ad{{ID: "a1", Weight: -2}}}, true},
		{"ad without id", Campaign{ID: "c1", Ads: []Ad{{Weight: 1}}}, true},
		{"duplicate ad", Campaign{ID: "c1", Ads: []Ad{{ID: "a"}, {ID: "a"}}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCampaign(&tc.c)
			if tc.wantErr != (err != nil) {
				t.Fatalf("wantErr=%t, got %v", tc.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidCampaign) {
				t.Fatalf("expected ErrInvalidCampaign, got %v", err)
			}
		})
	}
}

type knownMacros map[string]bool

func (k knownMacros) ValidateMarkup(doc string) []string {
	var out []string
	for _, part := range strings.Split(doc, "${")[1:] {
		if name, _, ok := strings.Cut(part, "}"); ok && !k[name] {
			out = append(out, name)
		}
	}
	return out
}

func TestValidateAdMarkup(t *testing.T) {
	checker := knownMacros{"AUCTION_PRICE": true}
	c := Campaign{ID: "c1", Ads: []Ad{
		{ID: "ok", HTML: `<img src="p?c=${AUCTION_PRICE}">`},
		{ID: "plain", HTML: "<b>hi</b>"},
	}}
	if err := ValidateAdMarkup(&c, checker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Ads = append(c.Ads, Ad{ID: "typo", HTML: "${AUCTON_PRICE}"})
	err := ValidateAdMarkup(&c, checker)
	if !errors.Is(err, ErrInvalidCampaign) {
		t.Fatalf("expected ErrInvalidCampaign, got %v", err)
	}
	if !strings.Contains(err.Error(), "ad typo of campaign c1 uses unknown macros AUCTON_PRICE") {
		t.Errorf("unexpected message: %v", err)
	}
}
