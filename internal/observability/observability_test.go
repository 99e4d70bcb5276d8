package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		env, level string
		want       zapcore.Level
	}{
		{"", "", zap.InfoLevel},
		{"dev", "", zap.DebugLevel},
		{"production", "warn", zap.WarnLevel},
		{"dev", "ERROR", zap.ErrorLevel},
		{"staging", "loud", zap.InfoLevel},
	}
	for _, tc := range tests {
		t.Setenv("ENV", tc.env)
		t.Setenv("LOG_LEVEL", tc.level)
		assert.Equal(t, tc.want, getLogLevel(), "ENV=%q LOG_LEVEL=%q", tc.env, tc.level)
	}
}

func TestGetSamplingRate(t *testing.T) {
	t.Setenv("LOG_SAMPLE_RATE", "")
	t.Setenv("ENV", "dev")
	assert.Equal(t, 1.0, GetSamplingRate())
	t.Setenv("ENV", "staging")
	assert.Equal(t, 0.5, GetSamplingRate())
	t.Setenv("ENV", "")
	assert.Equal(t, 0.1, GetSamplingRate())

	t.Setenv("LOG_SAMPLE_RATE", "0.25")
	assert.Equal(t, 0.25, GetSamplingRate())
	t.Setenv("LOG_SAMPLE_RATE", "2")
	assert.Equal(t, 0.1, GetSamplingRate(), "out of range values fall back")
}

func TestShouldSampleBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		require.True(t, ShouldSample(1))
		require.False(t, ShouldSample(0))
	}
}

func TestShouldLogRecordsStats(t *testing.T) {
	ResetSamplingStats()
	t.Cleanup(ResetSamplingStats)
	t.Setenv("LOG_SAMPLE_RATE", "1")

	for i := 0; i < 3; i++ {
		assert.True(t, ShouldLog("auction_won"))
	}
	t.Setenv("LOG_SAMPLE_RATE", "0")
	assert.False(t, ShouldLog("no_bid"))

	stats := GetSamplingStats()
	assert.Equal(t, SamplingStats{Total: 3, Sampled: 3, Rate: 1}, stats["auction_won"])
	assert.Equal(t, SamplingStats{Total: 1, Sampled: 0, Rate: 0}, stats["no_bid"])

	core, logs := observer.New(zap.InfoLevel)
	LogSamplingStats(zap.New(core))
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "auction_won", entries[0].ContextMap()["event"])
	assert.Equal(t, "no_bid", entries[1].ContextMap()["event"])
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.3).Description(), "TraceIDRatioBased{0.3}")
	assert.Contains(t, newSampler(0.3).Description(), "ParentBased")
}

func TestNewResource(t *testing.T) {
	t.Setenv("ENV", "staging")
	res := newResource("rtbengine-test")
	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "rtbengine-test", attrs["service.name"])
	assert.Equal(t, Version, attrs["service.version"])
	assert.Equal(t, "staging", attrs["environment"])
}
