package versionfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound means the file has no such field.
var ErrNotFound = errors.New("version not found")

// Read returns the value of field in the YAML file at path. Files that do
// not parse as YAML are scanned line by line for "field:".
func Read(path, field string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return Lookup(data, field)
}

// Lookup is Read on already loaded content.
func Lookup(data []byte, field string) (string, error) {
	if field == "" {
		field = "version"
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err == nil {
		if v, ok := doc[field]; ok && v != nil {
			return fmt.Sprint(v), nil
		}
		return "", ErrNotFound
	}

	prefix := field + ":"
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			v := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			return strings.Trim(v, `"'`), nil
		}
	}
	return "", ErrNotFound
}

// Line renders the value the way the bot reports it.
func Line(field, value string) string {
	return field + ": " + value
}
