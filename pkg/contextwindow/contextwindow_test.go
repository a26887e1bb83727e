package contextwindow_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/contextwindow"
	"github.com/papercomputeco/recall/pkg/llm"
)

func texts(msgs []llm.Message) []string {
	out := make([]string, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].GetText()
	}
	return out
}

func history(n int) []llm.Message {
	msgs := make([]llm.Message, 0, n)
	for i := range n {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.NewTextMessage(role, fmt.Sprintf("m%d", i)))
	}
	return msgs
}

var _ = Describe("Trim", func() {
	It("returns short histories unchanged", func() {
		msgs := history(5)
		Expect(contextwindow.Trim(msgs, 20)).To(Equal(msgs))
	})

	It("keeps exactly the window at the boundary", func() {
		msgs := history(20)
		Expect(contextwindow.Trim(msgs, 20)).To(HaveLen(20))
	})

	It("keeps the last maxMessages non-system messages in order", func() {
		trimmed := contextwindow.Trim(history(25), 20)
		Expect(trimmed).To(HaveLen(20))
		Expect(trimmed[0].GetText()).To(Equal("m5"))
		Expect(trimmed[19].GetText()).To(Equal("m24"))
	})

	It("keeps every system message in its position", func() {
		msgs := append([]llm.Message{llm.NewTextMessage(llm.RoleSystem, "sys")}, history(4)...)
		msgs = append(msgs[:3], append([]llm.Message{llm.NewTextMessage(llm.RoleSystem, "mid")}, msgs[3:]...)...)

		trimmed := contextwindow.Trim(msgs, 2)
		Expect(texts(trimmed)).To(Equal([]string{"sys", "mid", "m2", "m3"}))
	})

	It("keeps only system messages for a non-positive window", func() {
		msgs := append([]llm.Message{llm.NewTextMessage(llm.RoleSystem, "sys")}, history(3)...)
		Expect(texts(contextwindow.Trim(msgs, 0))).To(Equal([]string{"sys"}))
		Expect(texts(contextwindow.Trim(msgs, -1))).To(Equal([]string{"sys"}))
	})

	It("never returns more than the window plus system messages", func() {
		for n := range 30 {
			for window := 1; window < 25; window += 6 {
				trimmed := contextwindow.Trim(history(n), window)
				Expect(len(trimmed)).To(BeNumerically("<=", window))
			}
		}
	})
})
