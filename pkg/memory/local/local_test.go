package local

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/memory"
)

var _ memory.Driver = (*Driver)(nil)

var _ = Describe("Local Memory Driver", func() {
	var (
		ctx context.Context
		d   *Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = NewDriver()
	})

	Describe("NewDriver", func() {
		It("returns a non-nil driver", func() {
			Expect(d).NotTo(BeNil())
			Expect(d.entries).NotTo(BeNil())
		})
	})

	Describe("Add and List", func() {
		It("keeps entries per user in insertion order", func() {
			Expect(d.Add(ctx, "alice", "first", memory.Metadata{Source: "chat_session"})).To(Succeed())
			Expect(d.Add(ctx, "alice", "second", memory.Metadata{})).To(Succeed())
			Expect(d.Add(ctx, "bob", "other", memory.Metadata{})).To(Succeed())

			entries, err := d.List(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Content).To(Equal("first"))
			Expect(entries[0].ID).NotTo(BeEmpty())
			Expect(entries[0].UserID).To(Equal("alice"))
			Expect(entries[0].Metadata.Source).To(Equal("chat_session"))
		})

		It("returns a copy", func() {
			Expect(d.Add(ctx, "alice", "first", memory.Metadata{})).To(Succeed())
			entries, err := d.List(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			entries[0].Content = "mutated"

			again, err := d.List(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(again[0].Content).To(Equal("first"))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(d.Add(ctx, "alice", "user: I like pizza with olives", memory.Metadata{})).To(Succeed())
			Expect(d.Add(ctx, "alice", "user: my dog is called Rex", memory.Metadata{})).To(Succeed())
			Expect(d.Add(ctx, "alice", "user: pizza and pasta are my favorite foods", memory.Metadata{})).To(Succeed())
		})

		It("ranks by token overlap", func() {
			entries, err := d.Search(ctx, "alice", "favorite pizza", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Content).To(ContainSubstring("favorite"))
		})

		It("honors the limit", func() {
			entries, err := d.Search(ctx, "alice", "pizza", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})

		It("returns the most recent entries for an empty query", func() {
			entries, err := d.Search(ctx, "alice", "", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Content).To(ContainSubstring("pasta"))
		})

		It("never returns another user's entries", func() {
			entries, err := d.Search(ctx, "bob", "pizza", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Describe("Delete", func() {
		It("removes the entry", func() {
			Expect(d.Add(ctx, "alice", "a", memory.Metadata{})).To(Succeed())
			Expect(d.Add(ctx, "alice", "b", memory.Metadata{})).To(Succeed())
			entries, _ := d.List(ctx, "alice")

			Expect(d.Delete(ctx, "alice", entries[0].ID)).To(Succeed())

			remaining, err := d.List(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(remaining).To(HaveLen(1))
			Expect(remaining[0].Content).To(Equal("b"))
		})

		It("ignores unknown ids", func() {
			Expect(d.Delete(ctx, "alice", "missing")).To(Succeed())
		})
	})
})
