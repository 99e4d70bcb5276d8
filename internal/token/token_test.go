package token

import (
	"strings"
	"testing"
	"time"
)

func notice() WinNotice {
	return WinNotice{
		RequestID:  "r1",
		AuctionID:  "auction-1-x",
		CampaignID: "c1",
		AdID:       "ad1",
		Price:      0.31,
		Currency:   "USD",
	}
}

func TestGenerateVerify(t *testing.T) {
	secret := []byte("secret")
	tok, err := Generate(notice(), secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	p, err := Verify(tok, secret, time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.RequestID != "r1" || p.AuctionID != "auction-1-x" || p.CampaignID != "c1" || p.AdID != "ad1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Price != 0.31 || p.Currency != "USD" {
		t.Fatalf("unexpected auction data: %+v", p)
	}
	if time.Since(p.IssuedAt) > time.Minute {
		t.Fatalf("issued-at not stamped: %v", p.IssuedAt)
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s")
	n := notice()
	n.IssuedAt = time.Now().Add(-time.Hour)
	tok, err := Generate(n, secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(tok, secret, time.Minute); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := Verify(tok, secret, 0); err != nil {
		t.Fatalf("zero ttl should never expire, got %v", err)
	}
}

func TestVerifyInvalid(t *testing.T) {
	secret := []byte("s")
	tok, _ := Generate(notice(), secret)

	cases := map[string]string{
		"tampered signature": tok + "x",
		"wrong shape":        "abc",
		"bad encoding":       "!!!.???",
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Verify(bad, secret, time.Minute); err != ErrInvalid {
				t.Fatalf("expected invalid, got %v", err)
			}
		})
	}

	if _, err := Verify(tok, []byte("other"), time.Minute); err != ErrInvalid {
		t.Fatalf("expected invalid with wrong secret, got %v", err)
	}
}

func TestGenerateValidation(t *testing.T) {
	secret := []byte("s")

	missing := notice()
	missing.CampaignID = ""
	if _, err := Generate(missing, secret); err == nil || !strings.Contains(err.Error(), "campaign id") {
		t.Fatalf("expected campaign id error, got %v", err)
	}

	long := notice()
	long.AdID = strings.Repeat("a", MaxIDLength+1)
	if _, err := Generate(long, secret); err == nil || !strings.Contains(err.Error(), "too long") {
		t.Fatalf("expected length error, got %v", err)
	}

	negative := notice()
	negative.Price = -0.01
	if _, err := Generate(negative, secret); err == nil {
		t.Fatal("expected negative price error")
	}
}
