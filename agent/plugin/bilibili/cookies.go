package bilibili

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// browserCookie mirrors the cookie export format of browser automation tools.
type browserCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

// LoadCookieHeader reads a JSON cookie export and renders it as a Cookie
// header value. A missing file means anonymous access and is not an error.
func LoadCookieHeader(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read cookie file: %w", err)
	}

	var cookies []browserCookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return "", fmt.Errorf("decode cookie file %s: %w", path, err)
	}

	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if c.Domain != "" && !strings.Contains(c.Domain, "bilibili.com") {
			continue
		}
		parts = append(parts, name+"="+c.Value)
	}
	return strings.Join(parts, "; "), nil
}
