package form

import (
	"fmt"
	"strings"
)

// MatchKind selects how a Rule compares its pattern with a feature name.
type MatchKind string

const (
	MatchExact        MatchKind = "exact"
	MatchContains     MatchKind = "contains"
	MatchContainsFold MatchKind = "contains_fold"
)

// Rule assigns a widget to every feature name it matches.
// An empty Label means "use the raw feature name".
type Rule struct {
	Name    string    `mapstructure:"name" yaml:"name"`
	Match   MatchKind `mapstructure:"match" yaml:"match"`
	Pattern string    `mapstructure:"pattern" yaml:"pattern"`
	Label   string    `mapstructure:"label" yaml:"label"`
	Min     float64   `mapstructure:"min" yaml:"min"`
	Max     float64   `mapstructure:"max" yaml:"max"`
	Default float64   `mapstructure:"default" yaml:"default"`
}

func (r Rule) matches(feature string) bool {
	switch r.Match {
	case MatchExact:
		return feature == r.Pattern
	case MatchContains:
		return strings.Contains(feature, r.Pattern)
	case MatchContainsFold:
		return strings.Contains(strings.ToLower(feature), strings.ToLower(r.Pattern))
	default:
		return false
	}
}

func (r Rule) validate() error {
	switch r.Match {
	case MatchExact, MatchContains, MatchContainsFold:
	default:
		return fmt.Errorf("rule %q: unknown match %q", r.Name, r.Match)
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("rule %q: pattern cannot be empty", r.Name)
	}
	return validateRange(r.Name, r.Min, r.Max, r.Default)
}

func validateRange(name string, min, max, def float64) error {
	if min > max {
		return fmt.Errorf("rule %q: min %v > max %v", name, min, max)
	}
	if def < min || def > max {
		return fmt.Errorf("rule %q: default %v outside [%v,%v]", name, def, min, max)
	}
	return nil
}

// RuleSet is an ordered list of rules plus the widget used when none match.
// The first matching rule wins.
type RuleSet struct {
	Name     string
	Rules    []Rule
	Fallback Rule
}

// Validate checks every rule and the fallback range.
func (rs RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("rule set %q has no rules", rs.Name)
	}
	for _, r := range rs.Rules {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return validateRange("fallback", rs.Fallback.Min, rs.Fallback.Max, rs.Fallback.Default)
}

// Variant names the two page flavours.
type Variant string

const (
	VariantFull       Variant = "full"
	VariantDeployment Variant = "deployment"
)

// ParseVariant maps user input ("", "full", "deployment", "lite") to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return VariantFull, nil
	case "deployment", "lite":
		return VariantDeployment, nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

// FullRules is the labelled rule set of the explained page.
func FullRules() RuleSet {
	return RuleSet{
		Name: string(VariantFull),
		Rules: []Rule{
			{Name: "age", Match: MatchExact, Pattern: "age", Label: "Age", Min: 18, Max: 120, Default: 55},
			{Name: "systolic", Match: MatchContains, Pattern: "sysBP", Label: "Systolic Blood Pressure", Min: 50, Max: 250, Default: 120},
			{Name: "diastolic", Match: MatchContains, Pattern: "diaBP", Label: "Diastolic Blood Pressure", Min: 50, Max: 250, Default: 120},
			{Name: "cholesterol", Match: MatchContainsFold, Pattern: "chol", Label: "Total Cholesterol", Min: 100, Max: 400, Default: 200},
			{Name: "glucose", Match: MatchContainsFold, Pattern: "gluc", Label: "Glucose", Min: 30, Max: 300, Default: 100},
		},
		Fallback: Rule{Name: "unmatched", Min: 30, Max: 300, Default: 100},
	}
}

// DeploymentRules is the coarse rule set of the lite page; apart from age,
// widgets carry the raw feature name.
func DeploymentRules() RuleSet {
	return RuleSet{
		Name: string(VariantDeployment),
		Rules: []Rule{
			{Name: "age", Match: MatchExact, Pattern: "age", Label: "Age", Min: 18, Max: 120, Default: 55},
			{Name: "blood_pressure", Match: MatchContains, Pattern: "BP", Min: 50, Max: 250, Default: 120},
			{Name: "cholesterol", Match: MatchContainsFold, Pattern: "chol", Min: 100, Max: 400, Default: 200},
		},
		Fallback: Rule{Name: "unmatched", Min: 30, Max: 300, Default: 100},
	}
}

// RulesFor returns the built-in rule set of a variant.
func RulesFor(v Variant) RuleSet {
	if v == VariantDeployment {
		return DeploymentRules()
	}
	return FullRules()
}
