package reconcile

import (
	"encoding/json"
	"strings"
)

// The model's output text hides in different places depending on which
// provider produced the response body. Each strategy knows one shape and
// reports (text, ok); they are tried in a fixed order.
type extractStrategy func(raw json.RawMessage) (string, bool)

var extractStrategies = []extractStrategy{
	extractChatCompletion,
	extractResponsesOutputText,
	extractContentBlocks,
	extractCandidates,
	extractPlainString,
}

// Text extracts the model output text from a response body, trying each
// known shape in order.
func Text(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	for _, strat := range extractStrategies {
		if text, ok := strat(raw); ok {
			return text, true
		}
	}
	return "", false
}

// chat/completions: choices[0].message.content
func extractChatCompletion(raw json.RawMessage) (string, bool) {
	var v struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || len(v.Choices) == 0 {
		return "", false
	}
	text := strings.TrimSpace(v.Choices[0].Message.Content)
	return text, text != ""
}

// responses API: top-level output_text
func extractResponsesOutputText(raw json.RawMessage) (string, bool) {
	var v struct {
		OutputText string `json:"output_text"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	text := strings.TrimSpace(v.OutputText)
	return text, text != ""
}

// messages API: content[0].text
func extractContentBlocks(raw json.RawMessage) (string, bool) {
	var v struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || len(v.Content) == 0 {
		return "", false
	}
	text := strings.TrimSpace(v.Content[0].Text)
	return text, text != ""
}

// generateContent: candidates[0].content.parts[0].text
func extractCandidates(raw json.RawMessage) (string, bool) {
	var v struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || len(v.Candidates) == 0 || len(v.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	text := strings.TrimSpace(v.Candidates[0].Content.Parts[0].Text)
	return text, text != ""
}

// already a bare JSON string
func extractPlainString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
