package memory_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

var _ = Describe("Adapter", func() {
	var (
		ctx     context.Context
		mock    *testutils.MockMemoryDriver
		adapter *memory.Adapter
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = testutils.NewMockMemoryDriver()
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		adapter = memory.NewAdapter(memory.Config{
			Driver: mock,
			Logger: logger.Nop(),
			Now:    func() time.Time { return now },
		})
	})

	Describe("Transcript", func() {
		It("renders role-prefixed lines", func() {
			msgs := []conversation.Message{
				conversation.NewTextMessage(conversation.RoleUser, "hi"),
				conversation.NewTextMessage(conversation.RoleAssistant, "hello"),
			}
			Expect(memory.Transcript(msgs)).To(Equal("user: hi\nassistant: hello"))
		})

		It("renders one line per text part and skips file parts", func() {
			msgs := []conversation.Message{{
				Role: conversation.RoleUser,
				Parts: []conversation.Part{
					{Type: conversation.PartTypeText, Text: "first"},
					{Type: conversation.PartTypeFile, File: &conversation.Attachment{Name: "a.png", URL: "https://blob/a.png", MediaType: "image/png"}},
					{Type: conversation.PartTypeText, Text: "second"},
				},
			}}
			Expect(memory.Transcript(msgs)).To(Equal("user: first\nuser: second"))
		})

		It("falls back to content when a message has no parts", func() {
			msgs := []conversation.Message{{Role: conversation.RoleUser, Content: "raw"}}
			Expect(memory.Transcript(msgs)).To(Equal("user: raw"))
		})
	})

	Describe("StoreExchange", func() {
		It("skips transcripts at or under the length floor", func() {
			msgs := []conversation.Message{
				conversation.NewTextMessage(conversation.RoleUser, "what is the time?"),
				conversation.NewTextMessage(conversation.RoleAssistant, "noon"),
			}
			Expect(len(memory.Transcript(msgs))).To(BeNumerically("<=", 100))

			adapter.StoreExchange(ctx, "alice", msgs, "c1")
			Expect(mock.Added).To(BeEmpty())
		})

		It("stores long transcripts with metadata", func() {
			msgs := []conversation.Message{
				conversation.NewTextMessage(conversation.RoleUser, strings.Repeat("tell me about go ", 5)),
				conversation.NewTextMessage(conversation.RoleAssistant, strings.Repeat("go is a language ", 5)),
			}

			adapter.StoreExchange(ctx, "alice", msgs, "c1")

			Expect(mock.Added).To(HaveLen(1))
			Expect(mock.Added[0]).To(HavePrefix("user: tell me about go"))
			meta := mock.AddedMetadata[0]
			Expect(meta.ConversationID).To(Equal("c1"))
			Expect(meta.MessageCount).To(Equal(2))
			Expect(meta.Source).To(Equal("chat_session"))
			Expect(meta.Timestamp).To(Equal("2025-06-01T12:00:00Z"))
		})

		It("swallows backend errors", func() {
			mock.FailAdd = true
			msgs := []conversation.Message{
				conversation.NewTextMessage(conversation.RoleUser, strings.Repeat("x", 200)),
			}
			Expect(func() { adapter.StoreExchange(ctx, "alice", msgs, "c1") }).NotTo(Panic())
		})
	})

	Describe("RetrieveRelevant", func() {
		It("defaults the limit to five", func() {
			mock.Entries = testutils.TextEntries("a", "b", "c", "d", "e", "f", "g")
			Expect(adapter.RetrieveRelevant(ctx, "alice", "q", 0)).To(HaveLen(5))
		})

		It("returns an empty slice on error", func() {
			mock.FailSearch = true
			out := adapter.RetrieveRelevant(ctx, "alice", "q", 3)
			Expect(out).NotTo(BeNil())
			Expect(out).To(BeEmpty())
		})
	})

	Describe("RetrieveAll", func() {
		It("categorizes entries", func() {
			mock.Entries = testutils.TextEntries("I like pizza", "My name is Alex", "It rained yesterday")
			c := adapter.RetrieveAll(ctx, "alice")
			Expect(c.Preferences).To(Equal([]string{"I like pizza"}))
			Expect(c.Facts).To(Equal([]string{"My name is Alex"}))
			Expect(c.Context).To(Equal([]string{"It rained yesterday"}))
		})

		It("returns empty buckets on error", func() {
			mock.FailList = true
			Expect(adapter.RetrieveAll(ctx, "alice").Total()).To(Equal(0))
		})
	})

	Describe("DeleteOlderThan", func() {
		BeforeEach(func() {
			mock.Entries = []memory.Entry{
				{ID: "old", Content: "old", Metadata: memory.Metadata{Timestamp: now.Add(-10 * 24 * time.Hour).Format(time.RFC3339)}},
				{ID: "new", Content: "new", Metadata: memory.Metadata{Timestamp: now.Add(-time.Hour).Format(time.RFC3339)}},
				{ID: "undated", Content: "undated"},
			}
		})

		It("deletes only entries older than the cutoff", func() {
			n, err := adapter.DeleteOlderThan(ctx, "alice", 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(mock.Deleted).To(Equal([]string{"old"}))
		})

		It("deletes everything when days is zero", func() {
			n, err := adapter.DeleteOlderThan(ctx, "alice", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("skips entries that fail to delete", func() {
			mock.FailDeleteIDs["new"] = true
			n, err := adapter.DeleteOlderThan(ctx, "alice", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("returns an error when listing fails", func() {
			mock.FailList = true
			_, err := adapter.DeleteOlderThan(ctx, "alice", 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ClearAll", func() {
		It("reports partial deletes", func() {
			mock.Entries = testutils.TextEntries("a", "b")
			mock.FailDeleteIDs["mem-b"] = true

			n, err := adapter.ClearAll(ctx, "alice")
			Expect(n).To(Equal(1))
			Expect(err).To(MatchError(memory.ErrPartialDelete))
		})

		It("succeeds when every entry is deleted", func() {
			mock.Entries = testutils.TextEntries("a", "b")
			n, err := adapter.ClearAll(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})
	})

	Describe("ComputeStats", func() {
		It("counts categories and finds the latest timestamp", func() {
			latest := now.Add(-time.Hour)
			mock.Entries = []memory.Entry{
				{ID: "1", Content: "I like tea", Metadata: memory.Metadata{Timestamp: now.Add(-48 * time.Hour).Format(time.RFC3339)}},
				{ID: "2", Content: "My name is Sam", Metadata: memory.Metadata{Timestamp: latest.Format(time.RFC3339)}},
				{ID: "3", Content: "It snowed"},
			}

			stats := adapter.ComputeStats(ctx, "alice")
			Expect(stats.Total).To(Equal(3))
			Expect(stats.Preferences).To(Equal(1))
			Expect(stats.Facts).To(Equal(1))
			Expect(stats.Context).To(Equal(1))
			Expect(stats.LastUpdated).NotTo(BeNil())
			Expect(stats.LastUpdated.Equal(latest)).To(BeTrue())
		})

		It("returns zero stats on error", func() {
			mock.FailList = true
			Expect(adapter.ComputeStats(ctx, "alice")).To(Equal(memory.Stats{}))
		})
	})

	Describe("without a driver", func() {
		It("degrades reads and fails deletes", func() {
			a := memory.NewAdapter(memory.Config{})
			Expect(a.Configured()).To(BeFalse())
			Expect(a.RetrieveRelevant(ctx, "alice", "q", 3)).To(BeEmpty())
			Expect(a.RetrieveAll(ctx, "alice").Total()).To(Equal(0))

			_, err := a.ClearAll(ctx, "alice")
			Expect(memory.IsNotConfigured(err)).To(BeTrue())
		})
	})
})
