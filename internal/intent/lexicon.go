package intent

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Lexicon is the keyword configuration behind the classifier and parsers.
type Lexicon struct {
	VendorKeywords  []string   `yaml:"vendor_keywords"`
	CityKeywords    []string   `yaml:"city_keywords"`
	GuideTriggers   []string   `yaml:"guide_triggers"`
	DetailsTriggers []string   `yaml:"details_triggers"`
	ReviewTriggers  []string   `yaml:"review_triggers"`
	Categories      []Category `yaml:"categories"`
	Localities      []string   `yaml:"localities"`
	RegionalTerms   []string   `yaml:"regional_terms"`
	DenialMessage   string     `yaml:"denial_message"`
}

type Category struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// LoadLexicon reads a lexicon from path, or the embedded default when path is empty.
func LoadLexicon(path string) (Lexicon, error) {
	b := defaultLexicon
	if path != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil {
			return Lexicon{}, fmt.Errorf("read lexicon %s: %w", path, err)
		}
	}
	var lex Lexicon
	if err := yaml.Unmarshal(b, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(lex.VendorKeywords) == 0 || len(lex.Categories) == 0 {
		return Lexicon{}, fmt.Errorf("lexicon must define vendor_keywords and categories")
	}
	return lex, nil
}

// DefaultLexicon returns the embedded lexicon. It panics only if the embedded
// file is broken, which the package tests guard against.
func DefaultLexicon() Lexicon {
	lex, err := LoadLexicon("")
	if err != nil {
		panic(err)
	}
	return lex
}

// phraseRegexp matches any of the phrases as whole words, case-insensitively.
// Longer phrases are tried first so "navi mumbai" wins over "mumbai".
func phraseRegexp(phrases []string) *regexp.Regexp {
	if len(phrases) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(phrases))
	for _, p := range sortedByLength(phrases) {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		q := regexp.QuoteMeta(p)
		q = strings.ReplaceAll(q, " ", `\s+`)
		quoted = append(quoted, q)
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func sortedByLength(in []string) []string {
	out := append([]string(nil), in...)
	// insertion sort keeps equal-length phrases in configured order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
