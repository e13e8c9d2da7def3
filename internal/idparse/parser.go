// Package idparse extracts, validates and normalises institutional
// collection identifiers from free-form folder names.
package idparse

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Grammar describes the identifier families a Parser recognises. Validation
// and extraction intentionally use different patterns: folder names carry
// surrounding prose that extraction must tolerate, while validation accepts
// nothing but a clean identifier.
type Grammar struct {
	// ValidationPatterns is a disjunction of anchored identifier patterns.
	ValidationPatterns []string `yaml:"validation_patterns"`
	// ExtractionPatterns scan free text. Each pattern's first capture group
	// is the candidate identifier; patterns without a group use the whole
	// match.
	ExtractionPatterns []string `yaml:"extraction_patterns"`
	// NormalisationRules rewrite specific families after the default
	// substitution. Rules apply in order; a matching rule overrides the
	// default result.
	NormalisationRules []RewriteRule `yaml:"normalisation_rules"`
	// DefaultSubstitution is replaced with a hyphen before rules run.
	// Defaults to underscores, periods and whitespace.
	DefaultSubstitution string `yaml:"default_substitution"`
}

// RewriteRule rejoins the capture groups of a matching identifier with a
// family-specific delimiter.
type RewriteRule struct {
	Pattern string `yaml:"pattern"`
	JoinBy  string `yaml:"join_by"`
}

// DefaultGrammar returns the identifier families in production use:
// accession numbers (RA, PA, H), manuscript numbers (MS), collection numbers
// (SC, COMY) and purchase-order variants (POL, NNNN-slvdb).
func DefaultGrammar() Grammar {
	return Grammar{
		ValidationPatterns: []string{
			`SC\d{4,}`,
			`\d{4,}-slvdb`,
			`POL-\d{4,}(?:-slvdb)?`,
			`MS-?\d{5}`,
			`RA-\d{4}-\d{2}`,
			`PA-\d{2}-\d{3,4}`,
			`H\d{2}(?:\d{2})?-\d{3}`,
			`COMY\d{5}`,
		},
		ExtractionPatterns: []string{
			`(SC[-_\. ]?\d{4,})`,
			`(?:^|[^0-9A-Za-z-])(\d{4,}[-_\. ]slvdb)`,
			`(POL[-_\. ]\d{4,}(?:[-_\. ]slvdb)?)`,
			`(MS[-_\. ]?\d{5})`,
			`(RA[-_\. ]\d{4}[-_\. ]\d{2})`,
			`(PA[-_\. ]\d{2}[-_\. ]\d{3,4})`,
			`(?:^|[^0-9A-Za-z-])(H\d{2}(?:\d{2})?[-_\. ]\d{3})`,
			`(COMY[-_\. ]?\d{5})`,
		},
		NormalisationRules: []RewriteRule{
			{Pattern: `^(MS)(\d+)`, JoinBy: "-"},
			{Pattern: `^(SC)\D?(\d+)`, JoinBy: ""},
		},
		DefaultSubstitution: `[_\.]|\s`,
	}
}

// Parser recognises identifiers according to a compiled Grammar.
type Parser struct {
	validate   *regexp.Regexp
	extract    []*regexp.Regexp
	rules      []rewriteRule
	defaultSub *regexp.Regexp
}

type rewriteRule struct {
	re     *regexp.Regexp
	joinBy string
}

// New compiles a Grammar into a Parser.
func New(g Grammar) (*Parser, error) {
	if len(g.ValidationPatterns) == 0 {
		return nil, fmt.Errorf("grammar has no validation patterns")
	}
	if g.DefaultSubstitution == "" {
		g.DefaultSubstitution = DefaultGrammar().DefaultSubstitution
	}

	validate, err := regexp.Compile(`^(?:` + strings.Join(g.ValidationPatterns, "|") + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compile validation pattern: %w", err)
	}

	extract := make([]*regexp.Regexp, 0, len(g.ExtractionPatterns))
	for _, p := range g.ExtractionPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile extraction pattern %q: %w", p, err)
		}
		extract = append(extract, re)
	}

	rules := make([]rewriteRule, 0, len(g.NormalisationRules))
	for _, r := range g.NormalisationRules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile normalisation rule %q: %w", r.Pattern, err)
		}
		rules = append(rules, rewriteRule{re: re, joinBy: r.JoinBy})
	}

	defaultSub, err := regexp.Compile(g.DefaultSubstitution)
	if err != nil {
		return nil, fmt.Errorf("compile default substitution: %w", err)
	}

	return &Parser{
		validate:   validate,
		extract:    extract,
		rules:      rules,
		defaultSub: defaultSub,
	}, nil
}

// Validate reports whether id fully matches one of the identifier families.
func (p *Parser) Validate(id string) bool {
	if id == "" {
		return false
	}
	return p.validate.MatchString(id)
}

// Normalize applies the default substitution and then the family rewrite
// rules, so that "RA.2012.12" becomes "RA-2012-12" and "MS12345" becomes
// "MS-12345". Later-matching rules override the default substitution.
func (p *Parser) Normalize(id string) string {
	norm := p.defaultSub.ReplaceAllString(id, "-")
	for _, r := range p.rules {
		if m := r.re.FindStringSubmatch(id); m != nil {
			norm = strings.Join(m[1:], r.joinBy)
		}
	}
	return norm
}

// ExtractAll scans text for identifier occurrences, optionally normalises
// each candidate, then re-validates and drops any that fail. ok is false
// only when no candidate survives.
func (p *Parser) ExtractAll(text string, normalise bool) ([]string, bool) {
	var ids []string
	for _, re := range p.extract {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			candidate := m[0]
			if len(m) > 1 {
				candidate = m[1]
			}
			if normalise {
				candidate = p.Normalize(candidate)
			}
			if p.Validate(candidate) {
				ids = append(ids, candidate)
			}
		}
	}
	return ids, len(ids) > 0
}

// primaryIDPrefixes orders identifier families by preference when a folder
// name yields more than one candidate.
var primaryIDPrefixes = []string{"RA", "PA", "SC", "POL", "H", "MS"}

// GuessPrimaryID picks the identifier used for filing when several were
// extracted. Candidates are sorted first, so the result is independent of
// input order. Returns "" when no candidate matches a known prefix.
func GuessPrimaryID(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	for _, prefix := range primaryIDPrefixes {
		for _, id := range sorted {
			if strings.HasPrefix(id, prefix) {
				return id
			}
		}
	}
	return ""
}
