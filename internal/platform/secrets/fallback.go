package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fallbackValues maps secret names, and name@version pairs, to local values. They
// serve development machines without Secret Manager access.
type fallbackValues map[string]string

func (v fallbackValues) lookup(ref Reference) (string, bool) {
	if ref.Version != "" {
		if value, ok := v[ref.Name+"@"+ref.Version]; ok {
			return value, true
		}
	}
	value, ok := v[ref.Name]
	return value, ok
}

func (v fallbackValues) add(rawRef, value string) {
	ref, err := ParseReference(rawRef)
	if err != nil {
		return
	}
	key := ref.Name
	if ref.Version != "" {
		key += "@" + ref.Version
	}
	v[key] = strings.TrimSpace(value)
}

// readFallback loads path. Files ending in .yaml or .yml hold a mapping of references
// to values; anything else holds "secret://name=value" lines. A missing file is empty.
func readFallback(path string) (fallbackValues, error) {
	values := fallbackValues{}
	if path == "" {
		return values, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read fallback file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]string
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("secrets: parse fallback file %s: %w", path, err)
		}
		for ref, value := range doc {
			values.add(ref, value)
		}
	default:
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			// values may contain '='
			if ref, value, ok := strings.Cut(line, "="); ok {
				values.add(ref, value)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("secrets: read fallback file %s: %w", path, err)
		}
	}
	return values, nil
}
