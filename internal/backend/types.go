// ABOUTME: Wire types exchanged with the remote auth and license-key services
// ABOUTME: Token, LicenseKey with alias-tolerant decoding, key status and expiry codes

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Token is the opaque backend session credential: the Cookie header value
// assembled from the cookies the auth service set on login. It is passed
// explicitly to every call instead of living in a shared cookie jar.
type Token string

// IsZero reports whether the token carries no credential
func (t Token) IsZero() bool {
	return strings.TrimSpace(string(t)) == ""
}

// withCookies merges cookies from a response into the token. Cookies the
// server expired (MaxAge < 0 or empty value) are removed.
func (t Token) withCookies(cookies []*http.Cookie) Token {
	if len(cookies) == 0 {
		return t
	}

	var order []string
	values := make(map[string]string)
	if !t.IsZero() {
		if existing, err := http.ParseCookie(string(t)); err == nil {
			for _, c := range existing {
				if _, seen := values[c.Name]; !seen {
					order = append(order, c.Name)
				}
				values[c.Name] = c.Value
			}
		}
	}

	for _, c := range cookies {
		if c.MaxAge < 0 || c.Value == "" {
			delete(values, c.Name)
			continue
		}
		if _, seen := values[c.Name]; !seen {
			order = append(order, c.Name)
		}
		values[c.Name] = c.Value
	}

	parts := make([]string, 0, len(values))
	for _, name := range order {
		v, ok := values[name]
		if !ok {
			continue
		}
		parts = append(parts, (&http.Cookie{Name: name, Value: v}).String())
	}
	return Token(strings.Join(parts, "; "))
}

// KeyStatus is the lifecycle state of a license key
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "Active"
	KeyStatusExpired KeyStatus = "Expired"
	KeyStatusRevoked KeyStatus = "Revoked"
)

// KeyStatuses lists the statuses in display order
var KeyStatuses = []KeyStatus{KeyStatusActive, KeyStatusExpired, KeyStatusRevoked}

// Valid reports whether s is one of the known statuses
func (s KeyStatus) Valid() bool {
	switch s {
	case KeyStatusActive, KeyStatusExpired, KeyStatusRevoked:
		return true
	}
	return false
}

// LicenseKey is a key record as returned by the license-key service.
// CreatedAt and ExpiresAt are kept verbatim; the service is authoritative.
type LicenseKey struct {
	Key       string    `json:"key"`
	Owner     string    `json:"user"`
	Bot       string    `json:"bot"`
	Status    KeyStatus `json:"status"`
	CreatedAt string    `json:"createdAt"`
	ExpiresAt string    `json:"expiresAt"`
}

// UnmarshalJSON accepts both generations of the record schema:
// owner as "user" or "mentorId", bot as "bot" or "botType".
func (k *LicenseKey) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key       string          `json:"key"`
		User      string          `json:"user"`
		MentorID  string          `json:"mentorId"`
		Bot       string          `json:"bot"`
		BotType   string          `json:"botType"`
		Status    KeyStatus       `json:"status"`
		CreatedAt json.RawMessage `json:"createdAt"`
		ExpiresAt json.RawMessage `json:"expiresAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding license key: %w", err)
	}

	*k = LicenseKey{
		Key:       raw.Key,
		Owner:     firstNonEmpty(raw.User, raw.MentorID),
		Bot:       firstNonEmpty(raw.Bot, raw.BotType),
		Status:    raw.Status,
		CreatedAt: rawTimestamp(raw.CreatedAt),
		ExpiresAt: rawTimestamp(raw.ExpiresAt),
	}
	return nil
}

// rawTimestamp renders a JSON string or number as text without interpreting it
func rawTimestamp(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Expiry is the symbolic validity period sent to the generate endpoint.
// The service maps it to an absolute expiry timestamp.
type Expiry string

const (
	ExpiryOneWeek     Expiry = "1w"
	ExpiryOneMonth    Expiry = "1m"
	ExpiryThreeMonths Expiry = "3m"
	ExpirySixMonths   Expiry = "6m"
	ExpiryOneYear     Expiry = "1y"
)

// ExpiryOption pairs an expiry code with its display label
type ExpiryOption struct {
	Code  Expiry
	Label string
}

// ExpiryOptions lists the accepted expiry codes in display order
var ExpiryOptions = []ExpiryOption{
	{Code: ExpiryOneWeek, Label: "1 Week"},
	{Code: ExpiryOneMonth, Label: "1 Month"},
	{Code: ExpiryThreeMonths, Label: "3 Months"},
	{Code: ExpirySixMonths, Label: "6 Months"},
	{Code: ExpiryOneYear, Label: "1 Year"},
}

// ErrInvalidExpiry is returned for expiry codes outside ExpiryOptions
var ErrInvalidExpiry = errors.New("invalid expiry option")

// ParseExpiry validates an expiry code
func ParseExpiry(code string) (Expiry, error) {
	for _, opt := range ExpiryOptions {
		if string(opt.Code) == code {
			return opt.Code, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidExpiry, code)
}
