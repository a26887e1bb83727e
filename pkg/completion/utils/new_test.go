package completionutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	completionutils "github.com/papercomputeco/recall/pkg/completion/utils"
	"github.com/papercomputeco/recall/pkg/logger"
)

var _ = DescribeTable("NewProvider",
	func(providerType, wantName string) {
		p, err := completionutils.NewProvider(&completionutils.NewProviderOpts{
			ProviderType: providerType,
			APIKey:       "key",
			Logger:       logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal(wantName))
	},
	Entry("default", "", "ollama"),
	Entry("ollama", "ollama", "ollama"),
	Entry("openai", "openai", "openai"),
	Entry("groq", "groq", "groq"),
)

var _ = It("rejects unknown completion providers", func() {
	_, err := completionutils.NewProvider(&completionutils.NewProviderOpts{ProviderType: "bard"})
	Expect(err).To(MatchError(ContainSubstring("unsupported completion provider")))
})
