package form

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cardiorisk/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FileConfig is the layout of an optional rules override file.
type FileConfig struct {
	Rules []Rule `mapstructure:"rules"`
}

// Snapshot is the rule set in effect at a point in time.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Source   string
	Rules    RuleSet
}

// RuleLoader serves the full-variant rule set. When backed by a file it
// watches the file and swaps in the new rules on every valid change; an
// invalid edit keeps the previous rules.
type RuleLoader struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewStaticLoader serves the built-in full rules.
func NewStaticLoader() *RuleLoader {
	return &RuleLoader{snapshot: Snapshot{Version: 1, LoadedAt: time.Now(), Source: "builtin", Rules: FullRules()}}
}

// NewRuleLoader reads path and starts watching it.
func NewRuleLoader(path string) (*RuleLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("rule loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read form rules failed: %w", err)
	}
	l := &RuleLoader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("form rules reload failed (%s): %v", evt.Name, err)
		}
	})
	v.WatchConfig()
	return l, nil
}

// Snapshot returns the current rules.
func (l *RuleLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := l.snapshot
	snap.Rules.Rules = append([]Rule(nil), l.snapshot.Rules.Rules...)
	return snap
}

// Version increases on every successful reload.
func (l *RuleLoader) Version() int64 {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot.Version
}

// RulesFor returns the rule set for a variant; only the full variant is
// configurable.
func (l *RuleLoader) RulesFor(v Variant) RuleSet {
	if v == VariantDeployment || l == nil {
		return RulesFor(v)
	}
	return l.Snapshot().Rules
}

func (l *RuleLoader) reload() error {
	var fc FileConfig
	if err := l.v.Unmarshal(&fc); err != nil {
		return fmt.Errorf("parse form rules failed: %w", err)
	}
	rs := RuleSet{
		Name:     string(VariantFull),
		Rules:    normalizeRules(fc.Rules),
		Fallback: FullRules().Fallback,
	}
	if err := rs.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Source:   l.path,
		Rules:    rs,
	}
	l.mu.Unlock()
	logger.Infof("form rules loaded %d rules from %s", len(rs.Rules), filepath.Base(l.path))
	return nil
}

func normalizeRules(in []Rule) []Rule {
	out := make([]Rule, 0, len(in))
	for i, r := range in {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule_%d", i+1)
		}
		r.Pattern = strings.TrimSpace(r.Pattern)
		r.Label = strings.TrimSpace(r.Label)
		r.Match = MatchKind(strings.ToLower(strings.TrimSpace(string(r.Match))))
		if r.Match == "" {
			r.Match = MatchContains
		}
		out = append(out, r)
	}
	return out
}
