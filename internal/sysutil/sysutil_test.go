package sysutil

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	for in, want := range map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		" DeBuG\t":  zerolog.DebugLevel,
		"":          zerolog.InfoLevel,
		"Warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"trace":     zerolog.InfoLevel,
		"disabled":  zerolog.InfoLevel,
		"verbose":   zerolog.InfoLevel,
		"-1":        zerolog.InfoLevel,
		"WARN":      zerolog.WarnLevel,
		"info":      zerolog.InfoLevel,
		"  panic  ": zerolog.PanicLevel,
	} {
		SetLogLevel(in)
		assert.Equal(t, want, zerolog.GlobalLevel(), "SetLogLevel(%q)", in)
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "TRUE", " yes ", "Y", "On"} {
		assert.True(t, IsTruthy(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "n", "enabled"} {
		assert.False(t, IsTruthy(v), v)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "", FirstNonEmpty())
	assert.Equal(t, "", FirstNonEmpty(" ", "\t"))
	assert.Equal(t, " https://x.supabase.co ", FirstNonEmpty("", " https://x.supabase.co ", "https://y"))
}

func TestRandomSecret(t *testing.T) {
	a, err := RandomSecret(32)
	require.NoError(t, err)
	b, err := RandomSecret(32)
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)

	_, err = RandomSecret(0)
	assert.Error(t, err)
}
