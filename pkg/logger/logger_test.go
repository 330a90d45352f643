package logger

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libharvest/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"nonsense", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(&config.LoggingConfig{Level: "nonsense"})
	assert.Error(t, err)
}

func TestTestLoggerCapturesMessages(t *testing.T) {
	log := NewTestLogger()

	log.Info("plain message")
	log.WithField("item_id", "42").Warn("field message")
	log.WithError(errors.New("boom")).Error("error message")

	msgs := log.GetMessages()
	require.Len(t, msgs, 3)

	assert.True(t, log.HasMessage("plain message"))
	assert.False(t, log.HasMessage("never logged"))

	warns := log.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "42", warns[0].Fields["item_id"])

	assert.True(t, log.HasError())

	log.Clear()
	assert.Empty(t, log.GetMessages())
	assert.False(t, log.HasError())
}

func TestTestLoggerAccumulatesFields(t *testing.T) {
	log := NewTestLogger()

	log.WithFields(map[string]interface{}{"a": 1}).WithField("b", 2).Info("combined")

	msgs := log.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].Fields["a"])
	assert.Equal(t, 2, msgs[0].Fields["b"])
}

func TestNopLoggerIsSilentAndChainable(t *testing.T) {
	log := NewNopLogger()

	// Chaining must be safe even though nothing is recorded.
	log.WithField("k", "v").WithFields(map[string]interface{}{"a": 1}).Info("ignored")
	log.WithError(errors.New("ignored")).Error("ignored")
}

func TestGlobalLoggerInitialize(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "info"}))
	assert.NotNil(t, GetLogger())
}
