package chat_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/chat"
	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

var _ = Describe("Editor", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		provider *testutils.MockCompletionProvider
		editor   *chat.Editor
		image    conversation.Attachment
		first    conversation.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		provider = testutils.NewMockCompletionProvider("A ", "dog")

		o, err := chat.NewOrchestrator(chat.Config{
			Store:    store,
			Provider: provider,
			Logger:   logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		editor = chat.NewEditor(o, logger.Nop())

		image = conversation.Attachment{Name: "img.png", URL: "https://cdn.example.com/img.png", MediaType: "image/png"}
		first = conversation.NewUserMessage("what animal is this?", []conversation.Attachment{image})
		first.ID = "m1"
		answer := conversation.NewTextMessage(conversation.RoleAssistant, "A cat")
		answer.ID = "m2"
		followUp := conversation.NewTextMessage(conversation.RoleUser, "are you sure?")
		followUp.ID = "m3"

		_, err = store.AppendMessages(ctx, "c1", "alice", []conversation.Message{first, answer, followUp})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("EditAndRegenerate", func() {
		It("keeps attachments, truncates the tail, and regenerates", func() {
			result, err := editor.EditAndRegenerate(ctx, "alice", "c1", "m1", "which breed is this?", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.State).To(Equal(chat.StateIdle))
			Expect(result.AssistantMessage.Text()).To(Equal("A dog"))

			conv, err := store.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(2))

			edited := conv.Messages[0]
			Expect(edited.ID).To(Equal("m1"))
			Expect(edited.Text()).To(Equal("which breed is this?"))
			Expect(edited.Attachments).To(ConsistOf(image))
			Expect(conv.Messages[1].Role).To(Equal(conversation.RoleAssistant))

			req := provider.LastRequest()
			Expect(req.Messages).To(HaveLen(2))
			Expect(req.Messages[1].ImageURLs()).To(Equal([]string{image.URL}))
		})

		It("fails without side effects for an unknown message", func() {
			result, err := editor.EditAndRegenerate(ctx, "alice", "c1", "nope", "x", nil)
			Expect(errors.Is(err, chat.ErrNotFound)).To(BeTrue())
			Expect(result.State).To(Equal(chat.StateFailed))

			conv, err := store.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(3))
			Expect(provider.Requests()).To(BeEmpty())
		})

		It("refuses to edit assistant messages", func() {
			_, err := editor.EditAndRegenerate(ctx, "alice", "c1", "m2", "x", nil)
			Expect(errors.Is(err, chat.ErrValidation)).To(BeTrue())
		})

		It("hides conversations owned by someone else", func() {
			_, err := editor.EditAndRegenerate(ctx, "bob", "c1", "m1", "x", nil)
			Expect(errors.Is(err, chat.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Edit", func() {
		It("replaces and truncates without regenerating", func() {
			msgs, err := editor.Edit(ctx, "alice", "c1", "m1", "new text", chat.ActionReplace)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Text()).To(Equal("new text"))
			Expect(msgs[0].Attachments).To(ConsistOf(image))
			Expect(provider.Requests()).To(BeEmpty())
		})

		It("rejects other actions", func() {
			_, err := editor.Edit(ctx, "alice", "c1", "m1", "new text", "append")
			Expect(errors.Is(err, chat.ErrValidation)).To(BeTrue())

			conv, err := store.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(3))
		})

		It("reports unknown messages as not found", func() {
			_, err := editor.Edit(ctx, "alice", "c1", "nope", "x", chat.ActionReplace)
			Expect(errors.Is(err, chat.ErrNotFound)).To(BeTrue())
		})
	})
})
