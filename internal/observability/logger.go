package observability

import (
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the production logger under the default service name.
func InitLogger() (*zap.Logger, error) {
	return InitLoggerWithLevel(getLogLevel(), "rtbengine")
}

// InitLoggerWithService builds the production logger for serviceName at the
// level chosen by ENV and LOG_LEVEL.
func InitLoggerWithService(serviceName string) (*zap.Logger, error) {
	return InitLoggerWithLevel(getLogLevel(), serviceName)
}

// InitLoggerWithLevel builds a JSON logger named after the service and installs
// it as the zap global, so packages logging through zap.L() share its fields.
func InitLoggerWithLevel(level zapcore.Level, serviceName string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	// field names expected by the log shipper
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	logger = logger.Named(serviceName).With(zap.String("service", serviceName))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// getLogLevel honours LOG_LEVEL when it parses, otherwise debug in development
// and info everywhere else.
func getLogLevel() zapcore.Level {
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if lvl, err := zapcore.ParseLevel(strings.ToLower(raw)); err == nil {
			return lvl
		}
	}
	switch environment() {
	case "development", "dev":
		return zap.DebugLevel
	default:
		return zap.InfoLevel
	}
}

// SamplingStats counts sampling decisions for one hot-path event.
type SamplingStats struct {
	Total   int64
	Sampled int64
	Rate    float64
}

var (
	samplingMutex sync.Mutex
	samplingStats = make(map[string]SamplingStats)
)

// ShouldSample draws once against rate, which is clamped to [0,1].
func ShouldSample(rate float64) bool {
	if rate >= 1.0 {
		return true
	}
	if rate <= 0.0 {
		return false
	}
	return rand.Float64() < rate
}

// ShouldLog decides whether a per-request info log for event is emitted at the
// current sampling rate, and records the decision under event.
func ShouldLog(event string) bool {
	rate := GetSamplingRate()
	sampled := ShouldSample(rate)

	samplingMutex.Lock()
	stats := samplingStats[event]
	stats.Total++
	stats.Rate = rate
	if sampled {
		stats.Sampled++
	}
	samplingStats[event] = stats
	samplingMutex.Unlock()

	return sampled
}

// GetSamplingRate returns LOG_SAMPLE_RATE when set to a valid fraction,
// otherwise a default for the environment: everything in development, half in
// staging and a tenth in production.
func GetSamplingRate() float64 {
	if raw := os.Getenv("LOG_SAMPLE_RATE"); raw != "" {
		if rate, err := strconv.ParseFloat(raw, 64); err == nil && rate >= 0 && rate <= 1 {
			return rate
		}
	}
	switch environment() {
	case "development", "dev":
		return 1.0
	case "staging", "test":
		return 0.5
	default:
		return 0.1
	}
}

// GetSamplingStats returns a copy of the per-event statistics.
func GetSamplingStats() map[string]SamplingStats {
	samplingMutex.Lock()
	defer samplingMutex.Unlock()

	result := make(map[string]SamplingStats, len(samplingStats))
	for event, stats := range samplingStats {
		result[event] = stats
	}
	return result
}

// LogSamplingStats writes one line per sampled event, sorted by event name.
func LogSamplingStats(logger *zap.Logger) {
	stats := GetSamplingStats()
	events := make([]string, 0, len(stats))
	for event := range stats {
		events = append(events, event)
	}
	sort.Strings(events)

	for _, event := range events {
		stat := stats[event]
		if stat.Total == 0 {
			continue
		}
		logger.Info("sampling stats",
			zap.String("event", event),
			zap.Float64("target_rate", stat.Rate),
			zap.Float64("actual_rate", float64(stat.Sampled)/float64(stat.Total)),
			zap.Int64("total_logs", stat.Total),
			zap.Int64("sampled_logs", stat.Sampled),
		)
	}
}

// ResetSamplingStats clears the statistics, typically after they are logged.
func ResetSamplingStats() {
	samplingMutex.Lock()
	defer samplingMutex.Unlock()
	samplingStats = make(map[string]SamplingStats)
}
