package chat_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/chat"
	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/llm"
)

var _ = Describe("ToLLMMessages", func() {
	It("converts text parts and image attachments", func() {
		user := conversation.NewUserMessage("what is this?", []conversation.Attachment{
			{Name: "img.png", URL: "https://cdn.example.com/img.png", MediaType: "image/png"},
			{Name: "notes.pdf", URL: "https://cdn.example.com/notes.pdf", MediaType: "application/pdf"},
		})
		assistant := conversation.NewTextMessage(conversation.RoleAssistant, "a cat")

		out := chat.ToLLMMessages([]conversation.Message{user, assistant})
		Expect(out).To(HaveLen(2))

		Expect(out[0].Role).To(Equal(llm.RoleUser))
		Expect(out[0].GetText()).To(Equal("what is this?"))
		Expect(out[0].ImageURLs()).To(Equal([]string{"https://cdn.example.com/img.png"}))
		Expect(out[0].Content).To(HaveLen(2))

		Expect(out[1].Role).To(Equal(llm.RoleAssistant))
		Expect(out[1].GetText()).To(Equal("a cat"))
	})

	It("falls back to content for messages without parts", func() {
		out := chat.ToLLMMessages([]conversation.Message{{Role: conversation.RoleUser, Content: "legacy"}})
		Expect(out[0].GetText()).To(Equal("legacy"))
	})

	It("keeps at least one block for image-only messages without images", func() {
		m := conversation.NewUserMessage("", []conversation.Attachment{
			{Name: "a.txt", URL: "https://cdn.example.com/a.txt", MediaType: "text/plain"},
		})
		out := chat.ToLLMMessages([]conversation.Message{m})
		Expect(out[0].Content).To(HaveLen(1))
		Expect(out[0].Content[0].Type).To(Equal(llm.BlockTypeText))
	})
})
