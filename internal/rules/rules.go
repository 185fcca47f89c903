package rules

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

type Shorteners struct {
	Hosts    []string `yaml:"hosts"`
	Patterns []string `yaml:"patterns"`
}

// BlockMarkers are lower-case substrings that identify a bot-block page, grouped by category.
type BlockMarkers struct {
	Challenge     []string `yaml:"challenge"`
	AccessDenied  []string `yaml:"access_denied"`
	BotProtection []string `yaml:"bot_protection"`
}

type Rules struct {
	Shorteners   Shorteners   `yaml:"shorteners"`
	BlockMarkers BlockMarkers `yaml:"block_markers"`
	NotFound     []string     `yaml:"not_found"`

	hosts    map[string]struct{}
	patterns []*regexp.Regexp
}

// Default returns the rules bundled with the binary.
func Default() *Rules {
	r, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return r
}

// Load reads rules from path. An empty path returns Default().
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is from application config
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	r.hosts = make(map[string]struct{}, len(r.Shorteners.Hosts))
	for _, h := range r.Shorteners.Hosts {
		r.hosts[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	r.patterns = r.patterns[:0]
	for _, p := range r.Shorteners.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("compile shortener pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}

	lower := func(in []string) {
		for i := range in {
			in[i] = strings.ToLower(strings.TrimSpace(in[i]))
		}
	}
	lower(r.BlockMarkers.Challenge)
	lower(r.BlockMarkers.AccessDenied)
	lower(r.BlockMarkers.BotProtection)
	lower(r.NotFound)
	return nil
}

// IsShortened reports whether raw looks like a shortened or share-style link.
func (r *Rules) IsShortened(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	for {
		if _, ok := r.hosts[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}

	for _, re := range r.patterns {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether value is one of the sentinel "nothing here" strings.
func (r *Rules) IsNotFound(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, s := range r.NotFound {
		if v == s {
			return true
		}
	}
	return false
}
