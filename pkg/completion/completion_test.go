package completion_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/completion"
	"github.com/papercomputeco/recall/pkg/llm"
)

var _ = Describe("Accumulator", func() {
	It("joins deltas and keeps the final chunk's metadata", func() {
		var acc completion.Accumulator
		acc.Add(llm.StreamChunk{Model: "llama3.2", Delta: "Hel"})
		acc.Add(llm.StreamChunk{Delta: "lo"})
		acc.Add(llm.StreamChunk{Done: true, StopReason: "stop", Usage: &llm.Usage{TotalTokens: 7}})

		resp := acc.Response()
		Expect(acc.Text()).To(Equal("Hello"))
		Expect(resp.Model).To(Equal("llama3.2"))
		Expect(resp.Message.Role).To(Equal(llm.RoleAssistant))
		Expect(resp.Message.GetText()).To(Equal("Hello"))
		Expect(resp.StopReason).To(Equal("stop"))
		Expect(resp.Usage.TotalTokens).To(Equal(7))
	})
})

var _ = Describe("StatusError", func() {
	It("matches ErrUpstream", func() {
		var err error = &completion.StatusError{Provider: "openai", StatusCode: 429, Body: "slow down\n"}
		Expect(errors.Is(err, completion.ErrUpstream)).To(BeTrue())
		Expect(err.Error()).To(Equal("openai returned status 429: slow down"))
	})
})
