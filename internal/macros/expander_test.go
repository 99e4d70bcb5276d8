package macros

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testContext() *ExpansionContext {
	return &ExpansionContext{
		AuctionID:    "auction-1-abc",
		BidID:        "bid-9",
		BidRequestID: "req-1",
		CampaignID:   "camp-1",
		AdID:         "ad-2",
		Price:        0.31,
		Currency:     "USD",
		Timestamp:    time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC),
	}
}

func TestMacroExpander_ExpandMarkup(t *testing.T) {
	expander := NewMacroExpanderForTesting(zaptest.NewLogger(t), false)
	ctx := testContext()

	tests := []struct {
		name     string
		markup   string
		expected string
	}{
		{"no macros", "<div>ad</div>", "<div>ad</div>"},
		{"empty", "", ""},
		{"price", `<img src="p?c=${AUCTION_PRICE}">`, `<img src="p?c=0.3100">`},
		{"ids", "${AUCTION_ID}/${AUCTION_BID_ID}/${AUCTION_AD_ID}/${CAMPAIGN_ID}", "auction-1-abc/bid-9/ad-2/camp-1"},
		{"currency and request", "${AUCTION_CURRENCY}:${AUCTION_REQUEST_ID}", "USD:req-1"},
		{"timestamp", "${TIMESTAMP}|${TIMESTAMP_MS}", "1705314645|1705314645000"},
		{"repeated", "${AUCTION_ID}${AUCTION_ID}", "auction-1-abcauction-1-abc"},
		{"unknown left alone", "${NOT_A_MACRO}", "${NOT_A_MACRO}"},
		{"old style braces untouched", "{AUCTION_ID}", "{AUCTION_ID}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expander.ExpandMarkup(tt.markup, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMacroExpander_ExpandURLEscapesValues(t *testing.T) {
	expander := NewMacroExpanderForTesting(zaptest.NewLogger(t), false)
	ctx := testContext()
	ctx.AuctionID = "a b&c"

	got, err := expander.ExpandURL("https://example.com/win?a=${AUCTION_ID}&p=${AUCTION_PRICE}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/win?a=a+b%26c&p=0.3100", got)

	_, err = expander.ExpandURL("://bad", ctx)
	assert.Error(t, err)
}

func TestMacroExpander_RandomValues(t *testing.T) {
	expander := NewMacroExpanderForTesting(zaptest.NewLogger(t), false)
	got, err := expander.ExpandMarkup("${UUID}|${RANDOM}", testContext())
	require.NoError(t, err)
	parts := strings.Split(got, "|")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 36)
	assert.NotEmpty(t, parts[1])
}

func TestMacroExpander_FailureModes(t *testing.T) {
	ctx := testContext()
	ctx.Price = -1

	t.Run("lenient keeps partial expansion", func(t *testing.T) {
		expander := NewMacroExpanderForTesting(zaptest.NewLogger(t), false)
		got, err := expander.ExpandMarkup("${AUCTION_ID}-${AUCTION_PRICE}", ctx)
		require.NoError(t, err)
		assert.Equal(t, "auction-1-abc-${AUCTION_PRICE}", got)
	})

	t.Run("strict fails", func(t *testing.T) {
		expander := NewMacroExpanderForTesting(zaptest.NewLogger(t), true)
		_, err := expander.ExpandMarkup("${AUCTION_ID}-${AUCTION_PRICE}", ctx)
		assert.Error(t, err)
	})

	t.Run("strict url", func(t *testing.T) {
		expander := NewMacroExpanderForTesting(zaptest.NewLogger(t), true)
		_, err := expander.ExpandURL("https://t.test/${AUCTION_PRICE}", ctx)
		assert.Error(t, err)
	})
}

func TestMacroExpander_ValidateMarkup(t *testing.T) {
	expander := NewMacroExpanderForTesting(zaptest.NewLogger(t), false)

	assert.Empty(t, expander.ValidateMarkup("<a href='x?p=${AUCTION_PRICE}'>${AUCTION_ID}</a>"))
	assert.Equal(t, []string{"FOO", "BAR"}, expander.ValidateMarkup("${FOO} ${AUCTION_ID} ${BAR}"))
	assert.Empty(t, expander.ValidateMarkup("${UNTERMINATED"))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "0.3100", FormatPrice(0.31))
	assert.Equal(t, "1.0000", FormatPrice(1))
	assert.Equal(t, "0.0000", FormatPrice(0))
}
