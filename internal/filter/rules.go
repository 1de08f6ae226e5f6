package filter

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules map[string]Rule `yaml:"rules"`
}

// LoadRules reads keyword rules from a YAML file and merges them over the
// defaults, replacing the default rule of any keyword the file names.
// An empty path returns the defaults.
//
// File format:
//
//	rules:
//	  사물함:
//	    include: [도서관, 교육연구시설]
//	  책상:
//	    include: [학교]
//	    exclude: [철거]
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	for keyword, rule := range f.Rules {
		if err := validateRule(keyword, rule); err != nil {
			return nil, err
		}
		rules[keyword] = rule
	}
	return rules, nil
}

func validateRule(keyword string, r Rule) error {
	if strings.TrimSpace(keyword) == "" {
		return fmt.Errorf("rule keyword cannot be empty")
	}
	if len(r.Include) == 0 && len(r.Exclude) == 0 {
		return fmt.Errorf("rule %q must have at least one include or exclude entry", keyword)
	}
	for _, s := range append(append([]string{}, r.Include...), r.Exclude...) {
		if s == "" {
			return fmt.Errorf("rule %q has an empty substring", keyword)
		}
	}
	return nil
}
