package scanning

import (
	"fmt"
	"strings"
	"unicode"
)

// Prompt embeds the image payload between these markers
const (
	imageOpenTag  = "<image>"
	imageCloseTag = "</image>"
)

// maxInstructionRunes caps the instruction text sent to a provider
const maxInstructionRunes = 5000

// shelfLifePrompt is the shared instruction used by all providers
const shelfLifePrompt = `You are looking at a photo of food or household items. Identify every distinct item that is clearly visible.

For each item, estimate how many days it stays fresh or usable under typical home storage.

Return ONLY a JSON array in this exact format:
[
  {"name": "bread", "date": "3 days"},
  {"name": "milk", "date": "7 days"}
]

Important:
- "name" is a short common name for the item
- "date" is the estimated shelf life written as "<number> days"
- If an item does not spoil or you cannot estimate it, use "unknown" for "date"
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// DefaultInstruction returns the prompt used when the caller does not supply one
func DefaultInstruction() string {
	return shelfLifePrompt
}

// RecognitionRequest is the provider-agnostic payload for one recognition call
type RecognitionRequest struct {
	EncodedImage    string
	MimeType        string
	InstructionText string
}

// BuildRequest pairs an encoded image with a sanitized instruction
func BuildRequest(encodedImage, mimeType, instruction string) RecognitionRequest {
	instruction = sanitizeInstruction(instruction)
	if instruction == "" {
		instruction = shelfLifePrompt
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return RecognitionRequest{
		EncodedImage:    encodedImage,
		MimeType:        mimeType,
		InstructionText: instruction,
	}
}

// TextRequest builds a request without an image
func TextRequest(instruction string) RecognitionRequest {
	return RecognitionRequest{InstructionText: sanitizeInstruction(instruction)}
}

// DataURL renders the image as a data: URL, or "" for text-only requests
func (r RecognitionRequest) DataURL() string {
	if r.EncodedImage == "" {
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", r.MimeType, r.EncodedImage)
}

// Prompt renders the instruction followed by the delimited image reference
func (r RecognitionRequest) Prompt() string {
	if r.EncodedImage == "" {
		return r.InstructionText
	}
	return r.InstructionText + "\n" + imageOpenTag + r.DataURL() + imageCloseTag
}

// HasImage reports whether the request carries an encoded image
func (r RecognitionRequest) HasImage() bool {
	return r.EncodedImage != ""
}

// sanitizeInstruction strips control characters (keeping newlines and tabs) and
// truncates overly long instructions
func sanitizeInstruction(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxInstructionRunes {
		s = string(runes[:maxInstructionRunes])
	}
	return s
}
