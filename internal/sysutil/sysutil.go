// Package sysutil holds process-level helpers shared by config and the
// server entrypoint.
package sysutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level from a LOG_LEVEL style value.
// Names are matched case-insensitively, "warning" is accepted for warn and
// anything unrecognised falls back to info. Trace and disabled are refused
// so a typo cannot silence or flood production logs.
func SetLogLevel(lvl string) {
	name := strings.ToLower(strings.TrimSpace(lvl))
	if name == "warning" {
		name = "warn"
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil || parsed == zerolog.NoLevel || parsed < zerolog.DebugLevel || parsed > zerolog.PanicLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// IsTruthy reports whether an env value means "on": 1, true, yes, y or on.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first value that is not blank, untrimmed.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// RandomSecret returns n random bytes, base64url-encoded. The server uses it
// for a per-process token signing key when none is configured.
func RandomSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("sysutil: secret length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("sysutil: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
