package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// secretPaths are masked by Sanitize.
var secretPaths = []string{
	"channels.messenger.pageAccessToken",
	"channels.messenger.verifyToken",
	"channels.messenger.appSecret",
	"channels.telegram.token",
}

// asTree renders cfg through its JSON tags, so paths use the same keys as the
// config file.
func asTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func fromTree(tree map[string]any, cfg *Config) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// lookup resolves a dotted path to its parent section and leaf key. Only
// existing keys resolve.
func lookup(tree map[string]any, path string) (map[string]any, string, error) {
	parts := strings.Split(path, ".")
	node := tree
	for i, key := range parts[:len(parts)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("unknown config path %q: no section %q", path, strings.Join(parts[:i+1], "."))
		}
		node = child
	}
	leaf := parts[len(parts)-1]
	if _, ok := node[leaf]; !ok {
		return nil, "", fmt.Errorf("unknown config path %q", path)
	}
	return node, leaf, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "site.baseUrl").
// A section path returns the whole section.
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := asTree(cfg)
	if err != nil {
		return nil, err
	}
	node, leaf, err := lookup(tree, path)
	if err != nil {
		return nil, err
	}
	return node[leaf], nil
}

// SetByPath replaces the value at an existing dotted path. String values are
// converted to the type already stored there; lists take comma-separated items.
func SetByPath(cfg *Config, path string, value any) error {
	tree, err := asTree(cfg)
	if err != nil {
		return err
	}
	node, leaf, err := lookup(tree, path)
	if err != nil {
		return err
	}
	if _, isSection := node[leaf].(map[string]any); isSection {
		return fmt.Errorf("%s is a section; set one of its keys", path)
	}

	v, err := coerce(node[leaf], value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	node[leaf] = v

	if err := fromTree(tree, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func coerce(current, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return b, nil
	case float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return n, nil
	case []any, nil:
		// nil is an unset list such as telegram.allowFrom
		items := []any{}
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return s, nil
	}
}

// Sanitize returns a copy of the config with tokens and secrets masked.
func Sanitize(cfg *Config) *Config {
	tree, err := asTree(cfg)
	if err != nil {
		return &Config{}
	}
	for _, p := range secretPaths {
		node, leaf, err := lookup(tree, p)
		if err != nil {
			continue
		}
		if s, _ := node[leaf].(string); s != "" {
			node[leaf] = maskString(s)
		}
	}
	var out Config
	if err := fromTree(tree, &out); err != nil {
		return &Config{}
	}
	return &out
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns all settable config paths with their current values.
func ListPaths(cfg *Config) map[string]any {
	tree, err := asTree(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any)
	flatten("", tree, result)
	return result
}

func flatten(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if section, ok := v.(map[string]any); ok {
			flatten(path, section, result)
			continue
		}
		result[path] = v
	}
}
