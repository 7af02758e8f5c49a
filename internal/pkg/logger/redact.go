package logger

import "strings"

// RedactVisitorID masks a visitor identifier for safe logging.
// "8f3c9a1e-22b4-4f6d-9c0e-5a7d1b2c3d4e" → "8f3c***3d4e"
// Short identifiers (≤8 chars) are fully masked.
func RedactVisitorID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:4] + "***" + id[len(id)-4:]
}

// RedactIP masks the host portion of an IP address.
// "203.0.113.42" → "203.0.***.***"; IPv6 keeps only the first group.
func RedactIP(ip string) string {
	if strings.Contains(ip, ":") {
		if i := strings.Index(ip, ":"); i > 0 {
			return ip[:i] + ":***"
		}
		return "***"
	}
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "***"
	}
	return parts[0] + "." + parts[1] + ".***.***"
}
