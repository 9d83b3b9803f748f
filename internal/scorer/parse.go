package scorer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	fenceRe = regexp.MustCompile("```(?:json)?")
	jsonRe  = regexp.MustCompile(`(?s)\{.*\}`)
)

// llmPayload is the parsed shape of the model's JSON response. Scores is
// a map so missing dimension keys can be detected.
type llmPayload struct {
	Scores     map[string]int `json:"scores"`
	Overall    int            `json:"overall_score"`
	Confidence int            `json:"confidence"`
	Flags      []string       `json:"flags"`
	KeyPhrases []string       `json:"key_phrases"`
}

var requiredDimensions = []string{"readability", "grammar", "polish", "prose", "pacing"}

// parseResponse extracts the scoring payload from raw model output,
// trying progressively more forgiving strategies: raw JSON, fence-stripped
// JSON, then the outermost brace span. A payload missing any of the five
// dimension keys counts as a failure so the caller retries.
func parseResponse(text string) (*llmPayload, error) {
	candidates := []string{text}

	if cleaned := strings.TrimSpace(fenceRe.ReplaceAllString(text, "")); cleaned != text {
		candidates = append(candidates, cleaned)
	}
	if span := jsonRe.FindString(text); span != "" {
		candidates = append(candidates, span)
	}

	var lastErr error
	for _, candidate := range candidates {
		var payload llmPayload
		if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
			lastErr = err
			continue
		}
		if err := validateDimensions(payload.Scores); err != nil {
			return nil, err
		}
		return &payload, nil
	}

	return nil, eris.Wrap(lastErr, "scorer: parse response JSON")
}

func validateDimensions(scores map[string]int) error {
	var missing []string
	for _, key := range requiredDimensions {
		if _, ok := scores[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("scorer: response missing score keys: %s", strings.Join(missing, ", "))
	}
	return nil
}
