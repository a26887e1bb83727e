package storage_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/storage"
)

func msg(id, role, text string) conversation.Message {
	m := conversation.NewTextMessage(role, text)
	m.ID = id
	return m
}

var _ = Describe("FilterNew", func() {
	existing := []conversation.Message{
		msg("m1", conversation.RoleUser, "a"),
		msg("m2", conversation.RoleAssistant, "b"),
	}

	It("drops messages whose id is already stored", func() {
		fresh := storage.FilterNew(existing, []conversation.Message{
			msg("m2", conversation.RoleAssistant, "b"),
			msg("m3", conversation.RoleUser, "c"),
		})
		Expect(fresh).To(HaveLen(1))
		Expect(fresh[0].ID).To(Equal("m3"))
	})

	It("drops messages whose client id is already stored", func() {
		stored := msg("m1", conversation.RoleUser, "a")
		stored.ClientID = "tmp"
		incoming := msg("other", conversation.RoleUser, "a")
		incoming.ClientID = "tmp"

		Expect(storage.FilterNew([]conversation.Message{stored}, []conversation.Message{incoming})).To(BeEmpty())
	})

	It("drops repeats within the incoming batch", func() {
		fresh := storage.FilterNew(nil, []conversation.Message{
			msg("m1", conversation.RoleUser, "a"),
			msg("m1", conversation.RoleUser, "a"),
		})
		Expect(fresh).To(HaveLen(1))
	})
})

var _ = Describe("PrepareMessages", func() {
	It("assigns missing ids", func() {
		out, err := storage.PrepareMessages([]conversation.Message{
			conversation.NewTextMessage(conversation.RoleUser, "hi"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].ID).NotTo(BeEmpty())
	})

	It("rejects unsupported roles", func() {
		_, err := storage.PrepareMessages([]conversation.Message{
			conversation.NewTextMessage(conversation.RoleSystem, "x"),
		})
		Expect(errors.Is(err, storage.ErrInvalidMessage)).To(BeTrue())
	})
})

var _ = Describe("ReplaceAndTruncate", func() {
	It("keeps the original id, role and file parts", func() {
		original := conversation.NewUserMessage("old", []conversation.Attachment{
			{Name: "a.pdf", URL: "https://blob/a.pdf", MediaType: "application/pdf"},
		})
		original.ID = "u1"
		msgs := []conversation.Message{original, msg("a1", conversation.RoleAssistant, "reply")}

		edited := conversation.NewUserMessage("new", []conversation.Attachment{
			{Name: "b.png", URL: "https://blob/b.png", MediaType: "image/png"},
		})

		out, err := storage.ReplaceAndTruncate(msgs, "u1", edited)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].ID).To(Equal("u1"))
		Expect(out[0].Content).To(Equal("new"))
		Expect(out[0].Attachments).To(HaveLen(1))
		Expect(out[0].Attachments[0].Name).To(Equal("a.pdf"))
	})

	It("does not mutate its input", func() {
		msgs := []conversation.Message{msg("u1", conversation.RoleUser, "old")}
		_, err := storage.ReplaceAndTruncate(msgs, "u1", conversation.NewTextMessage(conversation.RoleUser, "new"))
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs[0].Content).To(Equal("old"))
	})

	It("returns a not found error for an unknown id", func() {
		_, err := storage.ReplaceAndTruncate(nil, "x", conversation.Message{})
		Expect(storage.IsNotFound(err)).To(BeTrue())
		Expect(err.Error()).To(Equal("message not found: x"))
	})
})

var _ = Describe("LastMessageAt", func() {
	created := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	It("returns the last message's timestamp", func() {
		m0 := msg("u1", conversation.RoleUser, "a")
		m0.Timestamp = created.Add(time.Hour)
		m1 := msg("a1", conversation.RoleAssistant, "b")
		m1.Timestamp = created.Add(2 * time.Hour)

		Expect(storage.LastMessageAt([]conversation.Message{m0, m1}, created)).To(Equal(m1.Timestamp))
	})

	It("falls back when there are no messages", func() {
		Expect(storage.LastMessageAt(nil, created)).To(Equal(created))
	})
})

var _ = Describe("TruncateFrom", func() {
	It("removes the message and its successors", func() {
		msgs := []conversation.Message{
			msg("u1", conversation.RoleUser, "a"),
			msg("a1", conversation.RoleAssistant, "b"),
			msg("u2", conversation.RoleUser, "c"),
		}
		out, err := storage.TruncateFrom(msgs, "a1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].ID).To(Equal("u1"))
	})
})

var _ = Describe("SortSummaries", func() {
	It("orders by last message time, newest first", func() {
		now := time.Now()
		s := []conversation.Summary{
			{ID: "old", LastMessageAt: now.Add(-time.Hour)},
			{ID: "new", LastMessageAt: now},
		}
		storage.SortSummaries(s)
		Expect(s[0].ID).To(Equal("new"))
	})
})

var _ = Describe("NewShareToken", func() {
	It("returns distinct url-safe tokens", func() {
		a, err := storage.NewShareToken()
		Expect(err).NotTo(HaveOccurred())
		b, err := storage.NewShareToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(HaveLen(32))
		Expect(a).To(MatchRegexp(`^[A-Za-z0-9_-]+$`))
		Expect(a).NotTo(Equal(b))
	})
})
