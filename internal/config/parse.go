package config

import (
	"strconv"
	"strings"
)

// DeliveryMethod selects the outbound transport.
type DeliveryMethod string

// Known delivery methods. Any other value is kept as-is and treated as SMTP
// by the dispatcher.
const (
	MethodSMTP DeliveryMethod = "smtp"
	MethodAPI  DeliveryMethod = "api"
)

// ParseDeliveryMethod lower-cases v. Unknown values are accepted, not rejected.
func ParseDeliveryMethod(v string) DeliveryMethod {
	return DeliveryMethod(lower(v))
}

// Known reports whether m is one of the supported delivery methods.
func (m DeliveryMethod) Known() bool {
	return m == MethodSMTP || m == MethodAPI
}

// Authentication is an SMTP AUTH mechanism name.
type Authentication string

// Supported SMTP authentication mechanisms.
const (
	AuthPlain   Authentication = "plain"
	AuthLogin   Authentication = "login"
	AuthCRAMMD5 Authentication = "cram_md5"
)

// ParseAuthentication lower-cases v. Unknown values are accepted, not rejected.
func ParseAuthentication(v string) Authentication {
	return Authentication(lower(v))
}

// parseBool converts a string to a tri-state boolean. It returns nil when the
// value is empty or not one of the recognized spellings.
func parseBool(v string) *bool {
	switch lower(v) {
	case "true", "1", "yes", "y":
		return ptr(true)
	case "false", "0", "no", "n":
		return ptr(false)
	default:
		return nil
	}
}

// parseInt converts a decimal string to an int, returning nil if the value
// is blank or not numeric.
func parseInt(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func parseInt64(v string) *int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func lower(v string) string {
	return strings.ToLower(v)
}
