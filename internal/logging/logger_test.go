package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetUsesCategoryName(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(nil) })

	Get(CategoryIdentity).Info("merged %d records", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "identity", entries[0].LoggerName)
	assert.Equal(t, "merged 3 records", entries[0].Message)
}

func TestGetCachesPerCategory(t *testing.T) {
	SetBase(nil)
	assert.Same(t, Get(CategorySeed), Get(CategorySeed))
	assert.NotSame(t, Get(CategorySeed), Get(CategoryFamilies))
}

func TestWithFieldsRebases(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(nil) })

	WithFields(zap.String("run_id", "r-1"))
	Get(CategoryPipeline).Info("stage done")

	entries := logs.FilterField(zap.String("run_id", "r-1")).All()
	require.Len(t, entries, 1)
}

func TestStatsEmitsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(nil) })

	Get(CategoryTransforms).Stats("stage A", map[string]int{"output": 4})

	entries := logs.FilterMessage("stage A").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 4, entries[0].ContextMap()["output"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(nil) })

	Get(CategoryStore).Debug("hidden")
	Get(CategoryStore).Warn("shown")
	assert.Equal(t, 1, logs.Len())
}
