package logger

import (
	"log/slog"
	"strings"
)

const (
	redactedToken    = "[REDACTED_TOKEN]"
	redactedPassword = "[REDACTED_PASSWORD]"
)

// Attributes that never reach the log output as is
var secretKeys = map[string]string{
	"access_token":  redactedToken,
	"refresh_token": redactedToken,
	"token":         redactedToken,
	"authorization": redactedToken,
	"password":      redactedPassword,
}

// Email keeps first two letters of local part: jo***@example.com
func Email(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***"
	}

	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

func redactAttr(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)

	if replacement, ok := secretKeys[key]; ok {
		if a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, replacement)
	}

	if key == "email" && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, Email(a.Value.String()))
	}

	return a
}
