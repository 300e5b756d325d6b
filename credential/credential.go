// Package credential carries login secrets through the pipeline without
// letting them reach logs, JSON output or error messages.
package credential

import (
	"log/slog"
	"os"
	"strings"
)

const redacted = "[redacted]"

// Secret is a string that never prints its value.
type Secret string

// Reveal returns the raw value. Call it only at the point of use.
func (s Secret) Reveal() string { return string(s) }

// Empty reports whether no value is set.
func (s Secret) Empty() bool { return strings.TrimSpace(string(s)) == "" }

func (s Secret) String() string { return redacted }

// GoString covers %#v.
func (s Secret) GoString() string { return redacted }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalText covers JSON and YAML encoding.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte(redacted), nil
}

// Credentials is a username/password pair for a browser login.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password Secret `json:"password" yaml:"password"`
}

// Complete reports whether both parts are set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && !c.Password.Empty()
}

// LogValue logs the masked username only.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", c.MaskedUsername()), slog.String("password", redacted))
}

// MaskedUsername keeps the first character and, for an email, the domain:
// "ada@example.com" becomes "a***@example.com".
func (c Credentials) MaskedUsername() string {
	u := strings.TrimSpace(c.Username)
	if u == "" {
		return ""
	}
	local, domain, isEmail := strings.Cut(u, "@")
	r := []rune(local)
	masked := "***"
	if len(r) > 0 {
		masked = string(r[0]) + masked
	}
	if isEmail {
		return masked + "@" + domain
	}
	return masked
}

// FromEnv fills missing parts of c from the named environment variables.
// Explicit values win.
func (c Credentials) FromEnv(userVar, passVar string) Credentials {
	if c.Username == "" && userVar != "" {
		c.Username = os.Getenv(userVar)
	}
	if c.Password.Empty() && passVar != "" {
		c.Password = Secret(os.Getenv(passVar))
	}
	return c
}

// SecretFromEnv returns explicit when set, otherwise the env variable.
func SecretFromEnv(explicit Secret, envVar string) Secret {
	if !explicit.Empty() || envVar == "" {
		return explicit
	}
	return Secret(strings.TrimSpace(os.Getenv(envVar)))
}
