package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/memory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

var _ = Describe("Classify", func() {
	DescribeTable("assigns categories",
		func(text string, expected memory.Category) {
			Expect(memory.Classify(text)).To(Equal(expected))
		},
		Entry("preference keyword", "I like pizza", memory.CategoryPreference),
		Entry("preference is case-insensitive", "My FAVORITE color is blue", memory.CategoryPreference),
		Entry("fact pattern", "My name is Alex", memory.CategoryFact),
		Entry("fact keyword", "I work at a bakery", memory.CategoryFact),
		Entry("context fallback", "It rained yesterday", memory.CategoryContext),
		Entry("preference wins over fact", "The thing I love is jazz", memory.CategoryPreference),
		Entry("substring match", "That seems likely", memory.CategoryPreference),
	)
})

var _ = Describe("Categorize", func() {
	It("groups the example memories", func() {
		c := memory.Categorize(testutils.TextEntries("I like pizza", "My name is Alex", "It rained yesterday"))
		Expect(c.Preferences).To(Equal([]string{"I like pizza"}))
		Expect(c.Facts).To(Equal([]string{"My name is Alex"}))
		Expect(c.Context).To(Equal([]string{"It rained yesterday"}))
		Expect(c.Total()).To(Equal(3))
	})

	It("returns empty buckets for no entries", func() {
		c := memory.Categorize(nil)
		Expect(c.Facts).To(BeEmpty())
		Expect(c.Facts).NotTo(BeNil())
		Expect(c.Preferences).NotTo(BeNil())
		Expect(c.Context).NotTo(BeNil())
	})
})
