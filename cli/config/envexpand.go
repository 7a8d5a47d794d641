// Package config handles YAML config file loading for sluice serve.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// escapedDollar stands in for "$$" during expansion so escaped dollars
// never match envVarPattern.
const escapedDollar = "\x00sluice:dollar\x00"

// ExpandEnv replaces ${VAR} with the variable's value and ${VAR:-default}
// with the value or, when the variable is unset or empty, the default.
// A "$$" escapes to a literal "$".
//
// Unset variables without defaults expand to empty string rather than
// erroring; required settings are caught by downstream validation.
func ExpandEnv(input string) string {
	escaped := strings.ReplaceAll(input, "$$", escapedDollar)
	expanded := envVarPattern.ReplaceAllStringFunc(escaped, expandVar)
	return strings.ReplaceAll(expanded, escapedDollar, "$")
}

// expandVar resolves one ${...} reference.
func expandVar(match string) string {
	groups := envVarPattern.FindStringSubmatch(match)
	if groups == nil {
		return match
	}

	if v := os.Getenv(groups[1]); v != "" {
		return v
	}
	// groups[2] holds the default, empty when none was given.
	return groups[2]
}
