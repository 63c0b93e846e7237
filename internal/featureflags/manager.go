// Package featureflags evaluates the FEATURE_FLAGS configuration string.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// UploadSimilaritySearch runs the similarity search when a collection photo is uploaded.
const UploadSimilaritySearch = "upload_similarity_search"

// defaults apply to known flags that the configuration does not mention.
var defaults = map[string]string{
	UploadSimilaritySearch: "on",
}

// rule is a parsed flag value: fully on, fully off, or a percentage rollout.
type rule struct {
	raw     string
	percent int
}

func parseRule(value string) (rule, error) {
	switch value {
	case "on", "true", "1":
		return rule{raw: value, percent: 100}, nil
	case "off", "false", "0":
		return rule{raw: value, percent: 0}, nil
	}
	if pctRaw, ok := strings.CutSuffix(value, "%"); ok {
		pct, err := strconv.Atoi(pctRaw)
		if err != nil || pct < 0 || pct > 100 {
			return rule{}, fmt.Errorf("invalid rollout %q", value)
		}
		return rule{raw: value, percent: pct}, nil
	}
	return rule{}, fmt.Errorf("invalid flag value %q", value)
}

// Manager evaluates feature flags defined in a key=value list, e.g.
// "upload_similarity_search=on,beta_search=25%".
type Manager struct {
	rules map[string]rule
}

// Parse builds a Manager and reports the first malformed entry.
func Parse(raw string) (*Manager, error) {
	m := newWithDefaults()
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key, value = normalize(key), normalize(value)
		if !ok || key == "" || value == "" {
			return m, fmt.Errorf("malformed feature flag %q", pair)
		}
		r, err := parseRule(value)
		if err != nil {
			return m, fmt.Errorf("feature flag %s: %w", key, err)
		}
		m.rules[key] = r
	}
	return m, nil
}

// NewManager builds a Manager, skipping malformed entries.
func NewManager(raw string) *Manager {
	m := newWithDefaults()
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if r, err := parseRule(normalize(value)); err == nil && normalize(key) != "" {
			m.rules[normalize(key)] = r
		}
	}
	return m
}

func newWithDefaults() *Manager {
	m := &Manager{rules: make(map[string]rule, len(defaults))}
	for name, value := range defaults {
		r, _ := parseRule(value)
		m.rules[name] = r
	}
	return m
}

// Enabled returns whether a flag is enabled for a given user. Percentage
// rollouts bucket users deterministically and never include anonymous callers.
func (m *Manager) Enabled(name string, userID uuid.UUID) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.percent <= 0:
		return false
	case r.percent >= 100:
		return true
	case userID == uuid.Nil:
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// Names returns every known flag in sorted order.
func (m *Manager) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.rules))
	for name := range m.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Raw returns the configured value of every flag.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot returns evaluated flag status for one user.
func (m *Manager) Snapshot(userID uuid.UUID) map[string]bool {
	out := make(map[string]bool)
	for _, name := range m.Names() {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID.String()))
	return int(h.Sum32() % 100)
}
