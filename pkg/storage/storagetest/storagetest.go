// Package storagetest holds the behavior suite every storage.Driver must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/storage"
)

// DriverBehaviors registers the shared message store specs. newDriver is
// called before each spec and the returned driver is closed after it.
func DriverBehaviors(newDriver func() storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	userMsg := func(id, text string) conversation.Message {
		m := conversation.NewTextMessage(conversation.RoleUser, text)
		m.ID = id
		return m
	}

	assistantMsg := func(id, text string) conversation.Message {
		m := conversation.NewTextMessage(conversation.RoleAssistant, text)
		m.ID = id
		return m
	}

	ids := func(msgs []conversation.Message) []string {
		out := make([]string, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, m.ID)
		}
		return out
	}

	Describe("CreateConversation", func() {
		It("creates an empty conversation with the default title", func() {
			c, err := driver.CreateConversation(ctx, "alice", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.ID).NotTo(BeEmpty())
			Expect(c.Title).To(Equal(conversation.DefaultTitle))
			Expect(c.Messages).To(BeEmpty())

			got, err := driver.GetConversation(ctx, c.ID, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.OwnerID).To(Equal("alice"))
		})

		It("keeps a provided title", func() {
			c, err := driver.CreateConversation(ctx, "alice", "Trip planning")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Title).To(Equal("Trip planning"))
		})
	})

	Describe("GetConversation", func() {
		It("returns not found for an unknown id", func() {
			_, err := driver.GetConversation(ctx, "missing", "alice")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("hides conversations owned by someone else", func() {
			c, err := driver.CreateConversation(ctx, "alice", "")
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.GetConversation(ctx, c.ID, "bob")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("AppendMessages", func() {
		It("creates the conversation on first append", func() {
			res, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{userMsg("m1", "hello")})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Created).To(BeTrue())
			Expect(res.Appended).To(HaveLen(1))
			Expect(res.Conversation.Title).To(Equal(conversation.DefaultTitle))

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got.Messages)).To(Equal([]string{"m1"}))
			Expect(got.Messages[0].Text()).To(Equal("hello"))
		})

		It("is idempotent by message id", func() {
			msgs := []conversation.Message{userMsg("m1", "hi"), assistantMsg("m2", "hello")}
			_, err := driver.AppendMessages(ctx, "c1", "alice", msgs)
			Expect(err).NotTo(HaveOccurred())

			res, err := driver.AppendMessages(ctx, "c1", "alice", msgs)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Created).To(BeFalse())
			Expect(res.Appended).To(BeEmpty())

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got.Messages)).To(Equal([]string{"m1", "m2"}))
		})

		It("appends only the messages not yet stored, in order", func() {
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{userMsg("m1", "a")})
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{
				userMsg("m1", "a"), assistantMsg("m2", "b"), userMsg("m3", "c"),
			})
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got.Messages)).To(Equal([]string{"m1", "m2", "m3"}))
		})

		It("assigns ids and deduplicates by client id", func() {
			m := conversation.NewTextMessage(conversation.RoleUser, "hi")
			m.ClientID = "tmp-1"

			res, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{m})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Appended).To(HaveLen(1))
			Expect(res.Appended[0].ID).NotTo(BeEmpty())
			Expect(res.Appended[0].ClientID).To(Equal("tmp-1"))

			res, err = driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{m})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Appended).To(BeEmpty())
		})

		It("rejects appends to another owner's conversation", func() {
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{userMsg("m1", "a")})
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.AppendMessages(ctx, "c1", "bob", []conversation.Message{userMsg("m2", "b")})
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("rejects system messages", func() {
			m := conversation.NewTextMessage(conversation.RoleSystem, "be nice")
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{m})
			Expect(err).To(MatchError(storage.ErrInvalidMessage))
		})

		It("keeps file parts", func() {
			m := conversation.NewUserMessage("look", []conversation.Attachment{
				{Name: "cat.png", URL: "https://blob/cat.png", MediaType: "image/png"},
			})
			m.ID = "m1"
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{m})
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages[0].Attachments).To(HaveLen(1))
			Expect(got.Messages[0].Attachments[0].URL).To(Equal("https://blob/cat.png"))
		})

		It("stores each message once under concurrent appends", func() {
			msgs := []conversation.Message{userMsg("m1", "a"), assistantMsg("m2", "b")}

			var wg sync.WaitGroup
			errs := make(chan error, 8)
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := driver.AppendMessages(ctx, "c1", "alice", msgs)
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got.Messages)).To(Equal([]string{"m1", "m2"}))
		})
	})

	Describe("ListConversations", func() {
		It("lists only the owner's conversations, most recent first", func() {
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{userMsg("m1", "a")})
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.AppendMessages(ctx, "c2", "bob", []conversation.Message{userMsg("m2", "b")})
			Expect(err).NotTo(HaveOccurred())
			time.Sleep(10 * time.Millisecond)
			_, err = driver.AppendMessages(ctx, "c3", "alice", []conversation.Message{userMsg("m3", "c")})
			Expect(err).NotTo(HaveOccurred())

			list, err := driver.ListConversations(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal("c3"))
			Expect(list[1].ID).To(Equal("c1"))
			Expect(list[0].MessageCount).To(Equal(1))
		})

		It("returns an empty list for an unknown owner", func() {
			list, err := driver.ListConversations(ctx, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})
	})

	Describe("SetTitle", func() {
		It("overwrites the title", func() {
			c, err := driver.CreateConversation(ctx, "alice", "")
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.SetTitle(ctx, c.ID, "alice", "Hello")).To(Succeed())

			got, err := driver.GetConversation(ctx, c.ID, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Hello"))
		})

		It("returns not found for another owner", func() {
			c, err := driver.CreateConversation(ctx, "alice", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.IsNotFound(driver.SetTitle(ctx, c.ID, "bob", "x"))).To(BeTrue())
		})
	})

	Describe("ReplaceMessageAndTruncate", func() {
		BeforeEach(func() {
			first := conversation.NewUserMessage("describe this", []conversation.Attachment{
				{Name: "a.png", URL: "https://blob/a.png", MediaType: "image/png"},
			})
			first.ID = "u1"
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{
				first, assistantMsg("a1", "a cat"), userMsg("u2", "more"), assistantMsg("a2", "fluffy"),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("replaces the message and drops everything after it", func() {
			msgs, err := driver.ReplaceMessageAndTruncate(ctx, "c1", "alice", "a1",
				conversation.NewTextMessage(conversation.RoleAssistant, "a dog"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(msgs)).To(Equal([]string{"u1", "a1"}))
			Expect(msgs[1].Text()).To(Equal("a dog"))

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got.Messages)).To(Equal([]string{"u1", "a1"}))
		})

		It("preserves the original file parts", func() {
			msgs, err := driver.ReplaceMessageAndTruncate(ctx, "c1", "alice", "u1",
				conversation.NewTextMessage(conversation.RoleUser, "what breed?"))
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Text()).To(Equal("what breed?"))
			Expect(msgs[0].Attachments).To(HaveLen(1))
			Expect(msgs[0].Attachments[0].Name).To(Equal("a.png"))
		})

		It("returns not found for an unknown message", func() {
			_, err := driver.ReplaceMessageAndTruncate(ctx, "c1", "alice", "nope",
				conversation.NewTextMessage(conversation.RoleUser, "x"))
			Expect(storage.IsNotFound(err)).To(BeTrue())

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).To(HaveLen(4))
		})
	})

	Describe("TruncateFrom", func() {
		BeforeEach(func() {
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{
				userMsg("u1", "a"), assistantMsg("a1", "b"), userMsg("u2", "c"),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("removes the message and everything after it", func() {
			msgs, err := driver.TruncateFrom(ctx, "c1", "alice", "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(msgs)).To(Equal([]string{"u1"}))
		})

		It("can empty the conversation", func() {
			msgs, err := driver.TruncateFrom(ctx, "c1", "alice", "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})

		It("allows re-appending a truncated id", func() {
			_, err := driver.TruncateFrom(ctx, "c1", "alice", "a1")
			Expect(err).NotTo(HaveOccurred())

			res, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{assistantMsg("a1", "again")})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Appended).To(HaveLen(1))
		})

		It("returns not found for an unknown message", func() {
			_, err := driver.TruncateFrom(ctx, "c1", "alice", "nope")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("LastMessageAt", func() {
		day := func(d int) time.Time {
			return time.Date(2024, time.January, d, 12, 0, 0, 0, time.UTC)
		}
		at := func(m conversation.Message, t time.Time) conversation.Message {
			m.Timestamp = t
			return m
		}
		lastMessageAt := func() time.Time {
			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())

			summaries, err := driver.ListConversations(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(summaries).To(HaveLen(1))
			Expect(summaries[0].LastMessageAt).To(BeTemporally("~", got.LastMessageAt, time.Millisecond))
			return got.LastMessageAt
		}

		BeforeEach(func() {
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{
				at(userMsg("m0", "a"), day(1)),
				at(assistantMsg("m1", "b"), day(3)),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("follows the timestamp of the last appended message", func() {
			Expect(lastMessageAt()).To(BeTemporally("~", day(3), time.Millisecond))
		})

		It("falls back to the last remaining message after a truncate", func() {
			_, err := driver.TruncateFrom(ctx, "c1", "alice", "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(lastMessageAt()).To(BeTemporally("~", day(1), time.Millisecond))
		})

		It("falls back to the creation time when a truncate empties the conversation", func() {
			_, err := driver.TruncateFrom(ctx, "c1", "alice", "m0")
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LastMessageAt).To(BeTemporally("~", got.CreatedAt, time.Millisecond))
		})

		It("takes the replacement's timestamp after an edit", func() {
			_, err := driver.ReplaceMessageAndTruncate(ctx, "c1", "alice", "m0",
				at(conversation.NewTextMessage(conversation.RoleUser, "edited"), day(2)))
			Expect(err).NotTo(HaveOccurred())
			Expect(lastMessageAt()).To(BeTemporally("~", day(2), time.Millisecond))
		})
	})

	Describe("DeleteConversation", func() {
		It("removes the conversation", func() {
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{userMsg("m1", "a")})
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.DeleteConversation(ctx, "c1", "alice")).To(Succeed())

			_, err = driver.GetConversation(ctx, "c1", "alice")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("refuses to delete another owner's conversation", func() {
			_, err := driver.AppendMessages(ctx, "c1", "alice", []conversation.Message{userMsg("m1", "a")})
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.IsNotFound(driver.DeleteConversation(ctx, "c1", "bob"))).To(BeTrue())

			_, err = driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("sharing", func() {
		var id string

		BeforeEach(func() {
			c, err := driver.CreateConversation(ctx, "alice", "shared")
			Expect(err).NotTo(HaveOccurred())
			id = c.ID
		})

		It("issues a token that resolves to the conversation", func() {
			token, err := driver.ShareConversation(ctx, id, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(HaveLen(32))

			got, err := driver.GetSharedConversation(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(id))
			Expect(got.IsShared).To(BeTrue())
		})

		It("returns the same token when shared twice", func() {
			first, err := driver.ShareConversation(ctx, id, "alice")
			Expect(err).NotTo(HaveOccurred())
			second, err := driver.ShareConversation(ctx, id, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("revokes the token on unshare", func() {
			token, err := driver.ShareConversation(ctx, id, "alice")
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.UnshareConversation(ctx, id, "alice")).To(Succeed())

			_, err = driver.GetSharedConversation(ctx, token)
			Expect(storage.IsNotFound(err)).To(BeTrue())

			got, err := driver.GetConversation(ctx, id, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsShared).To(BeFalse())
			Expect(got.ShareToken).To(BeEmpty())
		})

		It("does not let another owner share", func() {
			_, err := driver.ShareConversation(ctx, id, "bob")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns not found for an unknown token", func() {
			_, err := driver.GetSharedConversation(ctx, "does-not-exist")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("many conversations", func() {
		It("keeps message sequences separate", func() {
			for i := range 3 {
				cid := fmt.Sprintf("c%d", i)
				_, err := driver.AppendMessages(ctx, cid, "alice", []conversation.Message{
					userMsg(cid+"-u", "q"), assistantMsg(cid+"-a", "a"),
				})
				Expect(err).NotTo(HaveOccurred())
			}

			got, err := driver.GetConversation(ctx, "c1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got.Messages)).To(Equal([]string{"c1-u", "c1-a"}))
		})
	})
}
