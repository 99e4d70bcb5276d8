package macros

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// MacroExpander substitutes OpenRTB-style ${NAME} macros in winning ad markup
// and notice URLs.
type MacroExpander struct {
	logger     *zap.Logger
	expansions map[string]ExpansionFunc // fixed after construction
	strictMode bool                     // If true, any macro expansion failure causes the entire operation to fail

	// Metrics
	expansionCounter  *prometheus.CounterVec
	expansionDuration prometheus.Histogram
	failureCounter    *prometheus.CounterVec
}

// ExpansionFunc defines the signature for macro expansion functions
type ExpansionFunc func(ctx *ExpansionContext) (string, error)

// ExpansionContext contains all data available for macro expansion
type ExpansionContext struct {
	AuctionID    string
	BidID        string
	BidRequestID string
	CampaignID   string
	AdID         string
	Price        float64
	Currency     string
	Timestamp    time.Time
}

// NewMacroExpander creates a new macro expander with default macros
func NewMacroExpander(logger *zap.Logger) *MacroExpander {
	return NewMacroExpanderWithMode(logger, false) // Default to lenient mode
}

// NewMacroExpanderWithMode creates a new macro expander with configurable strict/lenient mode
func NewMacroExpanderWithMode(logger *zap.Logger, strictMode bool) *MacroExpander {
	return newMacroExpander(logger, strictMode, promauto.With(prometheus.DefaultRegisterer))
}

// NewMacroExpanderForTesting creates a new macro expander with a custom registry for testing
func NewMacroExpanderForTesting(logger *zap.Logger, strictMode bool) *MacroExpander {
	return newMacroExpander(logger, strictMode, promauto.With(prometheus.NewRegistry()))
}

func newMacroExpander(logger *zap.Logger, strictMode bool, factory promauto.Factory) *MacroExpander {
	expander := &MacroExpander{
		logger:     logger,
		expansions: make(map[string]ExpansionFunc),
		strictMode: strictMode,

		expansionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macro_expansions_total",
				Help: "Total number of macro expansions performed",
			},
			[]string{"macro", "success"},
		),
		expansionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "macro_expansion_duration_seconds",
				Help:    "Time taken to expand all macros in a document",
				Buckets: prometheus.DefBuckets,
			},
		),
		failureCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macro_expansion_failures_total",
				Help: "Total number of macro expansion failures",
			},
			[]string{"macro", "error_type"},
		),
	}

	expander.registerDefaultMacros()
	return expander
}

// ExpandMarkup expands macros in ad markup. Values are inserted verbatim.
func (e *MacroExpander) ExpandMarkup(markup string, ctx *ExpansionContext) (string, error) {
	return e.expand(markup, ctx, false)
}

// ExpandURL expands macros in a URL, query-escaping each value.
func (e *MacroExpander) ExpandURL(rawURL string, ctx *ExpansionContext) (string, error) {
	if rawURL == "" {
		return "", nil
	}
	if _, err := url.Parse(rawURL); err != nil {
		e.logger.Error("Failed to parse URL for macro expansion",
			zap.String("url", rawURL),
			zap.Error(err))
		return rawURL, err
	}
	return e.expand(rawURL, ctx, true)
}

func (e *MacroExpander) expand(doc string, ctx *ExpansionContext, escape bool) (string, error) {
	start := time.Now()
	defer func() {
		e.expansionDuration.Observe(time.Since(start).Seconds())
	}()

	if doc == "" || !strings.Contains(doc, "${") {
		return doc, nil
	}

	expanded, macrosFound, err := e.expandStandardMacros(doc, ctx, escape)
	if err != nil {
		if e.strictMode {
			return "", err
		}
		e.logger.Warn("Macro expansion completed with errors, continuing with partial expansion",
			zap.String("partial", expanded),
			zap.Error(err))
	}

	if macrosFound > 0 {
		e.logger.Debug("Expanded macros",
			zap.String("auction_id", ctx.AuctionID),
			zap.Int("macros_found", macrosFound))
	}
	return expanded, nil
}

// expandStandardMacros builds a single strings.Replacer for the macros present in doc.
func (e *MacroExpander) expandStandardMacros(doc string, ctx *ExpansionContext, escape bool) (string, int, error) {
	var replacements []string
	var firstErr error
	found := 0

	for macro, expansionFunc := range e.expansions {
		placeholder := "${" + macro + "}"
		if !strings.Contains(doc, placeholder) {
			continue
		}

		value, err := expansionFunc(ctx)
		if err != nil {
			e.expansionCounter.WithLabelValues(macro, "false").Inc()
			e.failureCounter.WithLabelValues(macro, "expansion_error").Inc()
			e.logger.Error("Failed to expand macro",
				zap.String("macro", macro),
				zap.Error(err))

			if e.strictMode {
				return "", 0, fmt.Errorf("macro expansion failed in strict mode for macro '%s': %w", macro, err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("macro %s: %w", macro, err)
			}
			continue
		}

		if escape {
			value = url.QueryEscape(value)
		}
		replacements = append(replacements, placeholder, value)
		found++
		e.expansionCounter.WithLabelValues(macro, "true").Inc()
	}

	if len(replacements) == 0 {
		return doc, 0, firstErr
	}
	return strings.NewReplacer(replacements...).Replace(doc), found, firstErr
}

// FormatPrice renders a settlement price the way it appears in markup and notices.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 4, 64)
}

// registerDefaultMacros registers the OpenRTB substitution macros plus a few
// cache-busting helpers.
func (e *MacroExpander) registerDefaultMacros() {
	e.expansions["AUCTION_ID"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.AuctionID, nil
	}

	e.expansions["AUCTION_BID_ID"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.BidID, nil
	}

	e.expansions["AUCTION_REQUEST_ID"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.BidRequestID, nil
	}

	e.expansions["AUCTION_PRICE"] = func(ctx *ExpansionContext) (string, error) {
		if ctx.Price < 0 {
			return "", fmt.Errorf("negative price %v", ctx.Price)
		}
		return FormatPrice(ctx.Price), nil
	}

	e.expansions["AUCTION_CURRENCY"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.Currency, nil
	}

	e.expansions["AUCTION_AD_ID"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.AdID, nil
	}

	e.expansions["CAMPAIGN_ID"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.CampaignID, nil
	}

	e.expansions["TIMESTAMP"] = func(ctx *ExpansionContext) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.Unix(), 10), nil
	}

	e.expansions["TIMESTAMP_MS"] = func(ctx *ExpansionContext) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.UnixMilli(), 10), nil
	}

	e.expansions["RANDOM"] = func(ctx *ExpansionContext) (string, error) {
		return strconv.FormatInt(time.Now().UnixNano(), 10), nil
	}

	e.expansions["UUID"] = func(ctx *ExpansionContext) (string, error) {
		return uuid.New().String(), nil
	}
}

// ValidateMarkup returns the ${...} macros in doc that have no registered expansion.
func (e *MacroExpander) ValidateMarkup(doc string) []string {
	var unsupported []string
	rest := doc
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			break
		}
		macro := rest[start+2 : start+end]
		if _, ok := e.expansions[macro]; !ok {
			unsupported = append(unsupported, macro)
		}
		rest = rest[start+end+1:]
	}

	return unsupported
}
