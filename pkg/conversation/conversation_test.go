package conversation_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/conversation"
)

var _ = Describe("GenerateTitle", func() {
	It("keeps short text as is", func() {
		Expect(conversation.GenerateTitle("Hello")).To(Equal("Hello"))
	})

	It("truncates long text to 50 characters plus an ellipsis", func() {
		text := strings.Repeat("a", 60)
		Expect(conversation.GenerateTitle(text)).To(Equal(strings.Repeat("a", 50) + "..."))
	})

	It("falls back to the default title for blank text", func() {
		Expect(conversation.GenerateTitle("   ")).To(Equal(conversation.DefaultTitle))
	})
})

var _ = Describe("Message", func() {
	img := conversation.Attachment{Name: "img.png", URL: "https://cdn.example.com/img.png", MediaType: "image/png"}

	Describe("NewUserMessage", func() {
		It("builds text and file parts", func() {
			m := conversation.NewUserMessage("look at this", []conversation.Attachment{img})
			Expect(m.Role).To(Equal(conversation.RoleUser))
			Expect(m.Parts).To(HaveLen(2))
			Expect(m.Content).To(Equal("look at this"))
			Expect(m.Attachments).To(ConsistOf(img))
			Expect(m.Timestamp.IsZero()).To(BeFalse())
		})

		It("always carries at least one part", func() {
			m := conversation.NewUserMessage("", nil)
			Expect(m.Parts).To(HaveLen(1))
			Expect(m.Parts[0].Type).To(Equal(conversation.PartTypeText))
			Expect(m.IsEmpty()).To(BeTrue())
		})
	})

	Describe("Normalize", func() {
		It("derives a text part from content", func() {
			m := conversation.Message{Role: conversation.RoleAssistant, Content: "hi"}
			m.Normalize()
			Expect(m.Parts).To(Equal([]conversation.Part{{Type: conversation.PartTypeText, Text: "hi"}}))
		})

		It("joins text parts into content", func() {
			m := conversation.Message{Parts: []conversation.Part{
				{Type: conversation.PartTypeText, Text: "foo"},
				{Type: conversation.PartTypeFile, File: &img},
				{Type: conversation.PartTypeText, Text: "bar"},
			}}
			m.Normalize()
			Expect(m.Content).To(Equal("foobar"))
			Expect(m.Attachments).To(HaveLen(1))
		})
	})

	It("clones deeply", func() {
		m := conversation.NewUserMessage("x", []conversation.Attachment{img})
		c := m.Clone()
		c.Parts[1].File.Name = "other.png"
		Expect(m.Parts[1].File.Name).To(Equal("img.png"))
	})
})
