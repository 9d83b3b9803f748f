package bookctx

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// defaultCraftTerms is the writing-craft vocabulary used to decide whether
// a review says anything about prose quality rather than plot or shipping.
var defaultCraftTerms = []string{
	"readability", "readable", "read", "grammar", "grammatical", "typos",
	"editing", "prose", "writing style", "pacing", "polish", "flow",
	"sentence structure", "clunky", "smooth", "choppy", "confusing",
	"clear", "clarity", "well-written", "poorly written", "writing",
	"couldn't put down", "page-turner", "beautifully written",
	"stilted", "awkward", "flowed", "easy to read", "hard to follow",
	"purple prose", "cliché", "formulaic", "vivid", "descriptive",
	"repetitive", "well-crafted", "rushed", "dragged", "slow",
	"fast-paced", "polished", "unpolished", "first draft",
	"needed an editor", "editor", "well-edited", "plot hole",
	"continuity", "inconsistent", "dnf", "couldn't finish",
}

// Vocabulary matches review text against a set of craft terms.
type Vocabulary struct {
	terms []string
}

// DefaultVocabulary returns the built-in craft-term set.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{terms: defaultCraftTerms}
}

// LoadVocabulary reads a YAML term list from path. An empty path falls
// back to the built-in set.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "bookctx: reading vocabulary file %s", path)
	}

	var file struct {
		Terms []string `yaml:"terms"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "bookctx: parsing vocabulary file %s", path)
	}
	if len(file.Terms) == 0 {
		return nil, eris.Errorf("bookctx: vocabulary file %s contains no terms", path)
	}

	terms := make([]string, 0, len(file.Terms))
	for _, t := range file.Terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	return &Vocabulary{terms: terms}, nil
}

// Matches reports whether text contains at least one craft term.
func (v *Vocabulary) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range v.terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
