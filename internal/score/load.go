package score

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
	"gopkg.in/yaml.v3"
)

// rulesFile is the YAML layout of a patterns file. Lists keep declaration
// order; any omitted section falls back to the built-in table.
type rulesFile struct {
	Manipulation Dictionary                `yaml:"manipulation"`
	Truth        Dictionary                `yaml:"truth"`
	Severity     map[model.Category]int    `yaml:"severity"`
	Bands        []model.Band              `yaml:"bands"`
	Responses    map[model.Category]string `yaml:"responses"`
}

// LoadRules reads a patterns file and merges it over the built-in rules
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read patterns file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML rules and merges them over the built-in rules
func ParseRules(data []byte) (Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Rules{}, fmt.Errorf("parse patterns: %w", err)
	}

	rules := DefaultRules()
	if f.Manipulation != nil {
		rules.Manipulation = normalizeDictionary(f.Manipulation)
	}
	if f.Truth != nil {
		rules.Truth = normalizeDictionary(f.Truth)
	}
	if f.Severity != nil {
		rules.Severity = f.Severity
	}
	if f.Bands != nil {
		rules.Bands = f.Bands
	}
	if f.Responses != nil {
		rules.Responses = f.Responses
	}

	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// normalizeDictionary lower-cases phrases so they can match normalized text
func normalizeDictionary(d Dictionary) Dictionary {
	out := make(Dictionary, len(d))
	for i, set := range d {
		phrases := make([]string, len(set.Phrases))
		for j, p := range set.Phrases {
			phrases[j] = strings.ToLower(p)
		}
		out[i] = PatternSet{Category: set.Category, Phrases: phrases}
	}
	return out
}
