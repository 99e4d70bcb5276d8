package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// MaxIDLength bounds every identifier carried in a win notice to keep URLs short.
const MaxIDLength = 128

// WinNotice identifies an auction win that the caller may later confirm.
type WinNotice struct {
	RequestID  string
	AuctionID  string
	CampaignID string
	AdID       string
	Price      float64
	Currency   string
	IssuedAt   time.Time
}

// payload structure for encoding/decoding
type payload struct {
	ReqID    string  `json:"r"`
	AucID    string  `json:"a"`
	CID      string  `json:"cid"`
	AdID     string  `json:"ad"`
	Price    float64 `json:"bp"`
	Currency string  `json:"cur"`
	TS       int64   `json:"t"`
}

func validate(n WinNotice) error {
	fields := map[string]string{
		"request id":  n.RequestID,
		"auction id":  n.AuctionID,
		"campaign id": n.CampaignID,
		"ad id":       n.AdID,
	}
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("%s is required", name)
		}
		if len(v) > MaxIDLength {
			return fmt.Errorf("%s too long: %d chars, max %d", name, len(v), MaxIDLength)
		}
	}
	if n.Price < 0 {
		return fmt.Errorf("price must be non-negative, got %v", n.Price)
	}
	return nil
}

// Generate creates a signed token for the win notice. A zero IssuedAt is
// stamped with the current time.
func Generate(n WinNotice, secret []byte) (string, error) {
	if err := validate(n); err != nil {
		return "", fmt.Errorf("win notice validation failed: %w", err)
	}
	if n.IssuedAt.IsZero() {
		n.IssuedAt = time.Now()
	}

	pl := payload{
		ReqID:    n.RequestID,
		AucID:    n.AuctionID,
		CID:      n.CampaignID,
		AdID:     n.AdID,
		Price:    n.Price,
		Currency: n.Currency,
		TS:       n.IssuedAt.Unix(),
	}
	data, err := json.Marshal(pl)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token integrity and expiry and returns the win notice.
func Verify(token string, secret []byte, ttl time.Duration) (WinNotice, error) {
	var out WinNotice

	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return out, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return out, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return out, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return out, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		return out, ErrInvalid
	}
	issued := time.Unix(pl.TS, 0)
	if ttl > 0 && time.Since(issued) > ttl {
		return out, ErrExpired
	}

	out.RequestID = pl.ReqID
	out.AuctionID = pl.AucID
	out.CampaignID = pl.CID
	out.AdID = pl.AdID
	out.Price = pl.Price
	out.Currency = pl.Currency
	out.IssuedAt = issued
	return out, nil
}
