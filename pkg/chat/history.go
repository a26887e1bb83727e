package chat

import (
	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/llm"
)

// ToLLMMessages converts stored messages into the model-facing sequence.
// Text parts become text blocks and image attachments become image blocks
// referenced by URL. Other attachments are not sent to the model.
func ToLLMMessages(msgs []conversation.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, toLLMMessage(&msgs[i]))
	}
	return out
}

func toLLMMessage(m *conversation.Message) llm.Message {
	msg := llm.Message{Role: m.Role}

	if len(m.Parts) == 0 {
		msg.Content = append(msg.Content, llm.ContentBlock{Type: llm.BlockTypeText, Text: m.Content})
		return msg
	}

	for _, p := range m.Parts {
		switch p.Type {
		case conversation.PartTypeText:
			if p.Text == "" {
				continue
			}
			msg.Content = append(msg.Content, llm.ContentBlock{Type: llm.BlockTypeText, Text: p.Text})
		case conversation.PartTypeFile:
			if p.File == nil || !p.File.IsImage() {
				continue
			}
			msg.Content = append(msg.Content, llm.ContentBlock{
				Type:      llm.BlockTypeImage,
				ImageURL:  p.File.URL,
				MediaType: p.File.MediaType,
			})
		}
	}

	if len(msg.Content) == 0 {
		msg.Content = []llm.ContentBlock{{Type: llm.BlockTypeText, Text: ""}}
	}
	return msg
}

// latestUserText returns the text of the last user message, the query used
// for memory retrieval.
func latestUserText(msgs []conversation.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleUser {
			return msgs[i].Text()
		}
	}
	return ""
}
