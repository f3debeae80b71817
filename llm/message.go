package llm

import "strings"

// Conversation roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PartType discriminates the content of a Part.
type PartType int

const (
	// PartText is a plain text fragment.
	PartText PartType = iota
	// PartImage is an inline image.
	PartImage
)

func (t PartType) String() string {
	switch t {
	case PartText:
		return "text"
	case PartImage:
		return "image"
	default:
		return "unknown"
	}
}

// Image is already-decoded image bytes in a format named by MIMEType
// (for example "image/jpeg").
type Image struct {
	MIMEType string
	Data     []byte
}

// Part is one piece of a message's content. Exactly one of Text or Image is
// meaningful, selected by Type.
type Part struct {
	Type  PartType
	Text  string
	Image *Image
}

// TextPart returns a text content part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart returns an image content part.
func ImagePart(mimeType string, data []byte) Part {
	return Part{Type: PartImage, Image: &Image{MIMEType: mimeType, Data: data}}
}

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    string
	Content []Part
}

// Text concatenates the text parts of the message, ignoring images.
func (m Message) Text() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Type == PartText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// HasImages reports whether any part of the message is an image.
func (m Message) HasImages() bool {
	for _, part := range m.Content {
		if part.Type == PartImage {
			return true
		}
	}
	return false
}

// NewMessage builds a message with the given role and parts.
func NewMessage(role string, parts ...Part) Message {
	return Message{Role: role, Content: parts}
}

// System returns a system turn holding text.
func System(text string) Message { return NewMessage(RoleSystem, TextPart(text)) }

// User returns a user turn holding text.
func User(text string) Message { return NewMessage(RoleUser, TextPart(text)) }

// Assistant returns an assistant turn holding text.
func Assistant(text string) Message { return NewMessage(RoleAssistant, TextPart(text)) }

// Prompt is an ordered conversation. Order is significant.
type Prompt []Message

// Result is the response to one prompt: one Output per generated completion.
type Result struct {
	Outputs []Output
	Usage   Usage
}

// Output is a single generated completion.
type Output struct {
	Text string
	// CompletionTokens is the number of tokens generated for this output.
	// It is zero when the vendor only reports an aggregate over all outputs,
	// in which case Result.Usage carries the total.
	CompletionTokens int
	FinishReason     string
}

// Usage is the token accounting reported for a whole request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}
