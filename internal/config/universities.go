package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// University is one entry of the static university directory.
type University struct {
	Code     string   `yaml:"code" json:"code"`
	Name     string   `yaml:"name" json:"name"`
	LogoURL  string   `yaml:"logoUrl" json:"logoUrl,omitempty"`
	Programs []string `yaml:"programs" json:"programs"`
}

type universitiesFile struct {
	Universities []University `yaml:"universities"`
}

// LoadUniversities reads the university directory from a YAML file.
// A missing file yields an empty directory.
func LoadUniversities(path string) ([]University, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read universities file: %w", err)
	}
	return ParseUniversities(data)
}

// ParseUniversities decodes and validates a university directory document.
func ParseUniversities(data []byte) ([]University, error) {
	var doc universitiesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse universities file: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Universities))
	out := make([]University, 0, len(doc.Universities))
	for i, u := range doc.Universities {
		u.Code = strings.TrimSpace(u.Code)
		if u.Code == "" {
			return nil, fmt.Errorf("university #%d has no code", i)
		}
		key := strings.ToUpper(u.Code)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate university code %q", u.Code)
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}
