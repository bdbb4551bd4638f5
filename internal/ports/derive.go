// derive.go computes the user-facing strings for a normalized port: the
// browser URL, the client connection string, and the rendered label. All
// derivation is pure string construction: no DNS lookups, no probing.
package ports

import (
	"fmt"
	"strconv"
	"strings"
)

// deriveURL returns a browser URL for web protocols, empty otherwise.
func deriveURL(protocol string, actual int) string {
	switch protocol {
	case "http":
		return fmt.Sprintf("http://localhost:%d", actual)
	case "https":
		return fmt.Sprintf("https://localhost:%d", actual)
	default:
		return ""
	}
}

// deriveConnectionString returns a client connection string for database
// and broker protocols. The service alias doubles as the default database
// name where the scheme expects one. Web and raw transports get a plain
// host:port form so every port has something copy-pasteable.
func deriveConnectionString(protocol, service string, actual int) string {
	switch protocol {
	case "postgres":
		return fmt.Sprintf("postgresql://localhost:%d/%s", actual, service)
	case "mysql":
		return fmt.Sprintf("mysql://localhost:%d/%s", actual, service)
	case "mongodb":
		return fmt.Sprintf("mongodb://localhost:%d/%s", actual, service)
	case "redis":
		return fmt.Sprintf("redis://localhost:%d", actual)
	case "amqp":
		return fmt.Sprintf("amqp://localhost:%d", actual)
	case "http", "https":
		return ""
	default:
		return fmt.Sprintf("localhost:%d", actual)
	}
}

// renderLabel expands a label template. Supported placeholders: ${port}
// (the actual port), ${service}, and ${option.<key>} for the overlay's
// manifest options. Unknown option placeholders expand to the empty string
// so stale templates degrade instead of erroring.
func renderLabel(template, service string, actual int, options map[string]string) string {
	if template == "" {
		return ""
	}
	pairs := []string{
		"${port}", strconv.Itoa(actual),
		"${service}", service,
	}
	for key, value := range options {
		pairs = append(pairs, "${option."+key+"}", value)
	}
	label := strings.NewReplacer(pairs...).Replace(template)

	// Drop unresolved option placeholders left behind by templates that
	// reference options the user never set.
	for {
		start := strings.Index(label, "${option.")
		if start < 0 {
			break
		}
		end := strings.Index(label[start:], "}")
		if end < 0 {
			break
		}
		label = label[:start] + label[start+end+1:]
	}
	return strings.TrimSpace(label)
}
