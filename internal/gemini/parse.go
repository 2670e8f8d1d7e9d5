package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the JSON object out of a model response. Markdown code
// fences are stripped first; the object is then located by the first
// opening and last closing brace. Models frequently wrap JSON in prose
// despite instructions not to.
func ExtractJSON(text string) (string, error) {
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = stripFences(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}

// stripFences removes markdown code fences (``` or ```json) from the text.
func stripFences(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// ParseSuite extracts and decodes the test suite JSON from a model
// response, fills in missing per-case defaults, and recomputes the summary
// from the actual cases.
func ParseSuite(text string) (Suite, error) {
	jsonStr, err := ExtractJSON(text)
	if err != nil {
		return Suite{}, err
	}

	var suite Suite
	if err := json.Unmarshal([]byte(jsonStr), &suite); err != nil {
		return Suite{}, fmt.Errorf("parsing test cases: %w", err)
	}

	for i := range suite.TestCases {
		if suite.TestCases[i].ID == "" {
			suite.TestCases[i].ID = fmt.Sprintf("test_%d", i+1)
		}
		if suite.TestCases[i].TestType == "" {
			suite.TestCases[i].TestType = "unit"
		}
		if suite.TestCases[i].Priority == "" {
			suite.TestCases[i].Priority = "medium"
		}
	}

	// The model's own summary numbers are unreliable; recompute them.
	suite.Summary = Summarize(suite.TestCases)

	return suite, nil
}

// Summarize counts test cases by type.
func Summarize(cases []TestCase) Summary {
	s := Summary{TotalTests: len(cases)}
	for _, tc := range cases {
		switch tc.TestType {
		case "integration":
			s.IntegrationTests++
		case "edge-case":
			s.EdgeCases++
		case "error-handling":
			s.ErrorHandlingTests++
		default:
			s.UnitTests++
		}
	}
	return s
}
