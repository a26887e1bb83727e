package chat_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/chat"
	"github.com/papercomputeco/recall/pkg/storage"
)

var _ = Describe("Error", func() {
	It("matches both the kind and the cause", func() {
		cause := storage.ConversationNotFound("c1")
		err := fmt.Errorf("outer: %w", &chat.Error{Kind: chat.ErrNotFound, Op: "chat.Test", Err: cause})

		Expect(errors.Is(err, chat.ErrNotFound)).To(BeTrue())
		Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		Expect(errors.Is(err, chat.ErrUpstream)).To(BeFalse())
		Expect(err.Error()).To(ContainSubstring("chat.Test"))
	})

	It("reports the kind of an error", func() {
		Expect(chat.KindOf(&chat.Error{Kind: chat.ErrValidation, Op: "x"})).To(Equal(chat.ErrValidation))
		Expect(chat.KindOf(errors.New("plain"))).To(BeNil())
	})
})
