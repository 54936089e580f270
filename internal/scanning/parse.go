package scanning

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Shape identifies which known response layout a text payload was found in
type Shape int

const (
	ShapeNone Shape = iota
	// ShapeOutputText is DashScope's native {"output": {"text": ...}}
	ShapeOutputText
	// ShapeChatChoices is OpenAI-style {"choices": [{"message": {"content": ...}}]}
	ShapeChatChoices
	// ShapeChatMessage is Ollama-style {"message": {"content": ...}}
	ShapeChatMessage
	// ShapeCandidates is Gemini-style {"candidates": [{"content": {"parts": [{"text": ...}]}}]}
	ShapeCandidates
	// ShapePlainText is a bare JSON string or a body that is not JSON at all
	ShapePlainText
)

func (s Shape) String() string {
	switch s {
	case ShapeOutputText:
		return "output_text"
	case ShapeChatChoices:
		return "chat_choices"
	case ShapeChatMessage:
		return "chat_message"
	case ShapeCandidates:
		return "candidates"
	case ShapePlainText:
		return "plain_text"
	default:
		return "none"
	}
}

// ParseResult is the best-effort interpretation of a provider response
type ParseResult struct {
	Items []Item
	Shape Shape
	// Degraded is set when the structured tier did not produce the result:
	// the text was split on delimiters, elements were dropped, or no text was found
	Degraded bool
}

// chatChoice is one element of an OpenAI-style choices array
type chatChoice struct {
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// candidate is one element of a Gemini-style candidates array
type candidate struct {
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

// textPart is one element of an array-valued message content
type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// locateText finds the text payload in a raw response, trying shapes in a fixed order
func locateText(raw RawResponse) (Shape, string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ShapeNone, ""
	}

	if !json.Valid(trimmed) {
		return ShapePlainText, string(trimmed)
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil && strings.TrimSpace(s) != "" {
			return ShapePlainText, s
		}
		return ShapeNone, ""
	}

	if trimmed[0] != '{' {
		return ShapeNone, ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return ShapeNone, ""
	}

	// Each layout is probed on its own key so a mistyped field cannot hide another
	if text := outputText(fields["output"]); text != "" {
		return ShapeOutputText, text
	}
	if text := choicesText(fields["choices"]); text != "" {
		return ShapeChatChoices, text
	}
	if text := messageText(fields["message"]); text != "" {
		return ShapeChatMessage, text
	}
	if text := candidatesText(fields["candidates"]); text != "" {
		return ShapeCandidates, text
	}
	return ShapeNone, ""
}

// decodeField decodes one top-level field, logging a type mismatch
func decodeField(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		slog.Debug("Ignoring response field with unexpected type", "error", err)
		return false
	}
	return true
}

func outputText(raw json.RawMessage) string {
	var output struct {
		Text string `json:"text"`
	}
	if !decodeField(raw, &output) || strings.TrimSpace(output.Text) == "" {
		return ""
	}
	return output.Text
}

func choicesText(raw json.RawMessage) string {
	var choices []chatChoice
	if !decodeField(raw, &choices) || len(choices) == 0 {
		return ""
	}
	return contentText(choices[0].Message.Content)
}

func messageText(raw json.RawMessage) string {
	var message struct {
		Content string `json:"content"`
	}
	if !decodeField(raw, &message) || strings.TrimSpace(message.Content) == "" {
		return ""
	}
	return message.Content
}

func candidatesText(raw json.RawMessage) string {
	var candidates []candidate
	if !decodeField(raw, &candidates) || len(candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return ""
	}
	return sb.String()
}

// contentText reads a chat message content that is either a string or a list of text parts
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var parts []textPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return strings.TrimSpace(sb.String())
	}
	return ""
}

// Parse interprets a provider response as a list of items. It never fails:
// unusable responses produce an empty, degraded result.
func Parse(raw RawResponse) ParseResult {
	shape, text := locateText(raw)
	if shape == ShapeNone {
		slog.Warn("No text payload found in provider response", "bytes", len(raw))
		return ParseResult{Items: []Item{}, Shape: ShapeNone, Degraded: true}
	}

	text = strings.TrimSpace(text)
	if items, dropped, ok := parseItemArray(text); ok {
		if dropped > 0 {
			slog.Warn("Dropped unnamed entries from provider response", "dropped", dropped, "kept", len(items))
		}
		return ParseResult{Items: items, Shape: shape, Degraded: dropped > 0}
	}

	slog.Debug("Response text is not a JSON array, splitting on delimiters", "shape", shape.String())
	return ParseResult{Items: splitItems(text), Shape: shape, Degraded: true}
}

// rawItem accepts the loosely typed entries models produce
type rawItem struct {
	Name string          `json:"name"`
	Date json.RawMessage `json:"date"`
}

// parseItemArray decodes the JSON array embedded in text. It reports ok=false
// when there is no array to decode.
func parseItemArray(text string) (items []Item, dropped int, ok bool) {
	text = stripCodeFence(text)

	startIdx := strings.Index(text, "[")
	endIdx := strings.LastIndex(text, "]")
	if startIdx == -1 || endIdx < startIdx {
		return nil, 0, false
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &elements); err != nil {
		return nil, 0, false
	}

	items = make([]Item, 0, len(elements))
	for _, element := range elements {
		element = bytes.TrimSpace(element)
		if len(element) == 0 {
			dropped++
			continue
		}

		switch element[0] {
		case '{':
			var ri rawItem
			if err := json.Unmarshal(element, &ri); err != nil {
				dropped++
				continue
			}
			name := strings.TrimSpace(ri.Name)
			if name == "" {
				dropped++
				continue
			}
			items = append(items, Item{Name: name, ShelfLife: coerceShelfLife(ri.Date)})
		case '"':
			var name string
			if err := json.Unmarshal(element, &name); err != nil || strings.TrimSpace(name) == "" {
				dropped++
				continue
			}
			items = append(items, Item{Name: strings.TrimSpace(name), ShelfLife: Unknown()})
		default:
			dropped++
		}
	}
	return items, dropped, true
}

// stripCodeFence removes a surrounding markdown code block if present
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

var firstInteger = regexp.MustCompile(`\d+`)

// coerceShelfLife turns a date/duration value into a ShelfLife. Strings yield
// their first embedded integer, non-negative integral numbers are taken as days,
// anything else is unknown.
func coerceShelfLife(raw json.RawMessage) ShelfLife {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Unknown()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return shelfLifeFromText(s)
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && f >= 0 && f == float64(uint(f)) {
		return Days(uint(f))
	}
	return Unknown()
}

// shelfLifeFromText extracts the first integer from s, e.g. "3 days" or "about 10"
func shelfLifeFromText(s string) ShelfLife {
	match := firstInteger.FindString(s)
	if match == "" {
		return Unknown()
	}
	n, err := strconv.ParseUint(match, 10, 0)
	if err != nil {
		return Unknown()
	}
	return Days(uint(n))
}

// splitItems is the fallback tier: one item per delimited segment, shelf-life unknown
func splitItems(text string) []Item {
	segments := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ',', '，', '、', '\n':
			return true
		}
		return false
	})

	items := make([]Item, 0, len(segments))
	for _, segment := range segments {
		name := strings.TrimSpace(segment)
		if name == "" {
			continue
		}
		items = append(items, Item{Name: name, ShelfLife: Unknown()})
	}
	return items
}
