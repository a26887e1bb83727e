package sse

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	readAll := func(input string) []*Event {
		r := NewReader(strings.NewReader(input))
		var events []*Event
		for {
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			if ev == nil {
				return events
			}
			events = append(events, ev)
		}
	}

	Describe("Next", func() {
		Context("with standard SSE events", func() {
			It("parses a single event", func() {
				events := readAll("data: hello world\n\n")
				Expect(events).To(HaveLen(1))
				Expect(events[0].Data).To(Equal("hello world"))
				Expect(events[0].Type).To(BeEmpty())
				Expect(events[0].ID).To(BeEmpty())
			})

			It("parses multiple events", func() {
				events := readAll("data: first\n\ndata: second\n\n")
				Expect(events).To(HaveLen(2))
				Expect(events[0].Data).To(Equal("first"))
				Expect(events[1].Data).To(Equal("second"))
			})

			It("parses event type and ID", func() {
				events := readAll("event: delta\nid: 42\ndata: {\"x\":1}\n\n")
				Expect(events).To(HaveLen(1))
				Expect(events[0].Type).To(Equal("delta"))
				Expect(events[0].ID).To(Equal("42"))
				Expect(events[0].Data).To(Equal(`{"x":1}`))
			})

			It("joins multiple data lines with newline", func() {
				events := readAll("data: line one\ndata: line two\ndata: line three\n\n")
				Expect(events[0].Data).To(Equal("line one\nline two\nline three"))
			})
		})

		Context("with OpenAI-style SSE", func() {
			It("parses streaming chunks and the done sentinel", func() {
				input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
					"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
					"data: [DONE]\n\n"

				events := readAll(input)
				Expect(events).To(HaveLen(3))
				Expect(events[0].IsDone()).To(BeFalse())
				Expect(events[2].IsDone()).To(BeTrue())
			})

			It("handles CRLF line endings", func() {
				events := readAll("data: hello\r\n\r\ndata: [DONE]\r\n\r\n")
				Expect(events).To(HaveLen(2))
				Expect(events[0].Data).To(Equal("hello"))
				Expect(events[1].IsDone()).To(BeTrue())
			})
		})

		Context("with data field variations", func() {
			It("ignores comment lines", func() {
				events := readAll(": keep-alive\ndata: payload\n\n")
				Expect(events).To(HaveLen(1))
				Expect(events[0].Data).To(Equal("payload"))
			})

			It("handles data field with no space after colon", func() {
				events := readAll("data:compact\n\n")
				Expect(events[0].Data).To(Equal("compact"))
			})

			It("handles empty data field", func() {
				events := readAll("data:\n\n")
				Expect(events).To(HaveLen(1))
				Expect(events[0].Data).To(BeEmpty())
			})
		})

		Context("edge cases", func() {
			It("returns nil on empty input", func() {
				Expect(readAll("")).To(BeEmpty())
			})

			It("returns nil on input with only blank lines", func() {
				Expect(readAll("\n\n\n")).To(BeEmpty())
			})

			It("yields event when stream ends without trailing blank line", func() {
				events := readAll("data: trailing")
				Expect(events).To(HaveLen(1))
				Expect(events[0].Data).To(Equal("trailing"))
			})

			It("ignores unknown fields", func() {
				events := readAll("retry: 3000\nfoo: bar\ndata: ok\n\n")
				Expect(events).To(HaveLen(1))
				Expect(events[0].Data).To(Equal("ok"))
			})
		})
	})
})
