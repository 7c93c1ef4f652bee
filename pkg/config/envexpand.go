package config

import (
	"os"
	"regexp"
)

// envPattern matches "${VAR}" and "${VAR:-default}" references inside YAML
// scalar values.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} / ${VAR:-default} references in raw YAML bytes
// with values from the process environment before the YAML is parsed, so
// secrets (DB passwords, NATS creds) never need to be checked into
// mcp.yaml.
func ExpandEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		fallback := string(groups[3])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(fallback)
	})
}
