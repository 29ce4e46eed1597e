package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML config file and exposes it as a lookup keyed the same
// way as the environment: nested key ai.provider answers TABSQL_AI_PROVIDER.
// Lists are joined with commas.
func LoadFile(path string) (LookupFunc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	return ParseYAML(raw)
}

func ParseYAML(raw []byte) (LookupFunc, error) {
	var document map[string]any
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	values := map[string]string{}
	if err := flatten("TABSQL", document, values); err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for key, value := range node {
		name := prefix + "_" + strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
		switch typed := value.(type) {
		case map[string]any:
			if err := flatten(name, typed, out); err != nil {
				return err
			}
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				text, err := scalar(name, item)
				if err != nil {
					return err
				}
				parts = append(parts, text)
			}
			out[name] = strings.Join(parts, ",")
		case nil:
		default:
			text, err := scalar(name, typed)
			if err != nil {
				return err
			}
			out[name] = text
		}
	}
	return nil
}

func scalar(name string, value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case bool:
		return strconv.FormatBool(typed), nil
	case int:
		return strconv.Itoa(typed), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value for %s: %T", name, value)
	}
}
