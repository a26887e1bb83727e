package conversation

import (
	"strings"
	"time"
)

// Message is one turn in a conversation.
//
// ID is the durable id assigned by the message store. ClientID is the
// optional provisional id the client used for optimistic display; the store
// echoes it back so the client can reconcile the two.
type Message struct {
	ID          string       `json:"id"`
	ClientID    string       `json:"clientId,omitempty"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Parts       []Part       `json:"parts"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Part is a typed fragment of a message: either text or a file reference.
type Part struct {
	Type string      `json:"type"`
	Text string      `json:"text,omitempty"`
	File *Attachment `json:"file,omitempty"`
}

// Attachment references an uploaded blob held by the object store.
type Attachment struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size,omitempty"`
	UUID      string `json:"uuid,omitempty"`
}

// IsImage reports whether the attachment is an image the model can see.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MediaType, "image/")
}

// NewTextMessage creates a message with a single text part.
func NewTextMessage(role, text string) Message {
	m := Message{
		Role:      role,
		Parts:     []Part{{Type: PartTypeText, Text: text}},
		Timestamp: time.Now().UTC(),
	}
	m.Normalize()
	return m
}

// NewUserMessage creates a user message from raw input text and any already
// uploaded attachments.
func NewUserMessage(text string, attachments []Attachment) Message {
	m := Message{
		Role:      RoleUser,
		Timestamp: time.Now().UTC(),
	}
	if text != "" {
		m.Parts = append(m.Parts, Part{Type: PartTypeText, Text: text})
	}
	for i := range attachments {
		a := attachments[i]
		m.Parts = append(m.Parts, Part{Type: PartTypeFile, File: &a})
	}
	m.Normalize()
	return m
}

// Text returns the concatenation of all text parts in order. Messages without
// parts fall back to Content.
func (m *Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}

	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// FileParts returns the file parts of the message in order.
func (m *Message) FileParts() []Part {
	var parts []Part
	for _, p := range m.Parts {
		if p.Type == PartTypeFile && p.File != nil {
			parts = append(parts, p)
		}
	}
	return parts
}

// IsEmpty reports whether the message carries neither text nor files.
func (m *Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text()) == "" && len(m.FileParts()) == 0
}

// Normalize restores the message invariants: at least one part, Content
// equal to the joined text parts, and Attachments mirroring the file parts.
// A message that only has Content gains a text part holding it.
func (m *Message) Normalize() {
	if len(m.Parts) == 0 {
		m.Parts = []Part{{Type: PartTypeText, Text: m.Content}}
	}

	m.Content = m.Text()

	m.Attachments = nil
	for _, p := range m.FileParts() {
		m.Attachments = append(m.Attachments, *p.File)
	}

	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			out.Parts[i] = p
			if p.File != nil {
				f := *p.File
				out.Parts[i].File = &f
			}
		}
	}
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return out
}

// CloneMessages returns a deep copy of msgs.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Clone()
	}
	return out
}
