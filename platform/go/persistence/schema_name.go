package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var schemaNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NormalizeSchemaName trims and lowercases the input and enforces a lowercase snake_case identifier that is safe to embed in SQL.
func NormalizeSchemaName(input string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if trimmed == "" {
		return "", errors.New("schema name is required")
	}

	if !schemaNamePattern.MatchString(trimmed) {
		return "", fmt.Errorf("invalid schema name %q: must match ^[a-z][a-z0-9_]*$", trimmed)
	}

	return trimmed, nil
}
