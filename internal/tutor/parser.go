package tutor

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParsedReply is the structured content extracted from a raw model reply.
type ParsedReply struct {
	AIResponse  string
	NextPhrase  string
	Corrections []Correction
}

// Canonical reply format produced by the tutoring prompt:
//
//	## 1. NEXT_PHRASE
//	<conversational follow-up>
//	## 2. AI_RESPONSE
//	<feedback text>
//	## 3. CORRECTIONS
//	<JSON array of corrections, optionally fenced>
//
// Replies missing any of the three headings fall back to treating the whole
// text as AIResponse.
var (
	nextPhraseRe  = regexp.MustCompile(`(?is)## 1\. NEXT_PHRASE\s*\n(.*?)(?:## 2|$)`)
	aiResponseRe  = regexp.MustCompile(`(?is)## 2\. AI_RESPONSE\s*\n(.*?)(?:## 3|$)`)
	correctionsRe = regexp.MustCompile(`(?is)## 3\. CORRECTIONS\s*\n(.*?)(?:\n##|$)`)
	codeFenceRe   = regexp.MustCompile("```(?:json)?")
)

// Parser extracts structured corrections from model replies.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts the canonical sections from a raw reply. Malformed replies
// never fail: the whole text becomes AIResponse with no corrections.
func (p *Parser) Parse(reply string) *ParsedReply {
	if strings.TrimSpace(reply) == "" {
		return &ParsedReply{}
	}

	if !hasCanonicalStructure(reply) {
		return &ParsedReply{AIResponse: strings.TrimSpace(reply)}
	}

	return &ParsedReply{
		NextPhrase:  extractNextPhrase(reply),
		AIResponse:  extractAIResponse(reply),
		Corrections: extractCorrections(reply),
	}
}

func hasCanonicalStructure(reply string) bool {
	upper := strings.ToUpper(reply)
	return strings.Contains(upper, "## 1. NEXT_PHRASE") &&
		strings.Contains(upper, "## 2. AI_RESPONSE") &&
		strings.Contains(upper, "## 3. CORRECTIONS")
}

func extractNextPhrase(reply string) string {
	m := nextPhraseRe.FindStringSubmatch(reply)
	if m == nil {
		return ""
	}
	return strings.Trim(strings.TrimSpace(m[1]), `"`)
}

func extractAIResponse(reply string) string {
	m := aiResponseRe.FindStringSubmatch(reply)
	if m != nil {
		return strings.TrimSpace(m[1])
	}
	// Fallback: first line of the reply.
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	if len(lines) > 0 {
		return lines[0]
	}
	return strings.TrimSpace(reply)
}

func extractCorrections(reply string) []Correction {
	m := correctionsRe.FindStringSubmatch(reply)
	if m == nil {
		return nil
	}

	raw := strings.TrimSpace(codeFenceRe.ReplaceAllString(m[1], ""))
	if raw == "" {
		return nil
	}

	// Accept both a JSON array and a bare single object.
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		var single json.RawMessage
		if err := json.Unmarshal([]byte(raw), &single); err != nil {
			return nil
		}
		if !strings.HasPrefix(strings.TrimSpace(string(single)), "{") {
			return nil
		}
		entries = []json.RawMessage{single}
	}

	var corrections []Correction
	for _, entry := range entries {
		c, ok := parseCorrection(entry)
		if !ok {
			continue // skip invalid entries
		}
		corrections = append(corrections, c)
	}
	return corrections
}

// parseCorrection decodes one correction entry, normalizing the explanation
// field, which models emit inconsistently (string, short list, long list).
func parseCorrection(entry json.RawMessage) (Correction, bool) {
	var raw struct {
		Original    string          `json:"original"`
		Corrected   string          `json:"corrected"`
		Explanation json.RawMessage `json:"explanation"`
		ErrorType   string          `json:"error_type"`
	}
	if err := json.Unmarshal(entry, &raw); err != nil {
		return Correction{}, false
	}

	c := Correction{
		Original:    raw.Original,
		Corrected:   raw.Corrected,
		Explanation: normalizeExplanation(raw.Explanation),
		ErrorType:   ErrorType(raw.ErrorType),
	}
	if err := c.Validate(); err != nil {
		return Correction{}, false
	}
	return c, true
}

func normalizeExplanation(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{"General", "Correction needed"}
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []string{"General", asString}
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		switch len(asList) {
		case 0:
			return []string{"General", "Correction needed"}
		case 1:
			return []string{"General", asList[0]}
		case 2:
			return asList
		default:
			return asList[:2]
		}
	}

	return []string{"General", strings.Trim(string(raw), `"`)}
}
