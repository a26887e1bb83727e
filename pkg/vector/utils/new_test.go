package vectorutils_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/vector/qdrant"
	"github.com/papercomputeco/recall/pkg/vector/sqlitevec"
	vectorutils "github.com/papercomputeco/recall/pkg/vector/utils"
)

var _ = Describe("NewVectorDriver", func() {
	It("builds a sqlite-vec driver", func() {
		driver, err := vectorutils.NewVectorDriver(context.Background(), &vectorutils.NewVectorDriverOpts{
			ProviderType: "sqlite-vec",
			TargetURL:    ":memory:",
			Dimensions:   4,
			Logger:       logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(driver).To(BeAssignableToTypeOf(&sqlitevec.Driver{}))
		Expect(driver.Close()).To(Succeed())
	})

	It("rejects unknown providers", func() {
		_, err := vectorutils.NewVectorDriver(context.Background(), &vectorutils.NewVectorDriverOpts{
			ProviderType: "pinecone",
			Logger:       logger.Nop(),
		})
		Expect(err).To(MatchError(ContainSubstring("unsupported vector store provider")))
	})
})

var _ = DescribeTable("ParseQdrantTarget",
	func(target, host string, port int, tls bool) {
		h, p, t, err := vectorutils.ParseQdrantTarget(target)
		Expect(err).NotTo(HaveOccurred())
		Expect(h).To(Equal(host))
		Expect(p).To(Equal(port))
		Expect(t).To(Equal(tls))
	},
	Entry("bare host", "localhost", "localhost", qdrant.DefaultPort, false),
	Entry("host and port", "qdrant:7334", "qdrant", 7334, false),
	Entry("http url", "http://qdrant:6334", "qdrant", 6334, false),
	Entry("https url", "https://cloud.qdrant.io:6334", "cloud.qdrant.io", 6334, true),
)
