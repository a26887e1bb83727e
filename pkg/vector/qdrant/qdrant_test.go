package qdrant_test

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/vector"
	"github.com/papercomputeco/recall/pkg/vector/qdrant"
)

var _ vector.Driver = (*qdrant.Driver)(nil)

var _ = Describe("PointID", func() {
	It("keeps UUID document ids", func() {
		id := uuid.NewString()
		Expect(qdrant.PointID(id).GetUuid()).To(Equal(id))
	})

	It("maps other ids to a stable UUID", func() {
		first := qdrant.PointID("mem-a").GetUuid()
		Expect(uuid.Validate(first)).To(Succeed())
		Expect(qdrant.PointID("mem-a").GetUuid()).To(Equal(first))
		Expect(qdrant.PointID("mem-b").GetUuid()).NotTo(Equal(first))
	})
})

var _ = Describe("NewDriver", func() {
	It("requires a host", func() {
		_, err := qdrant.NewDriver(context.Background(), qdrant.Config{Dimensions: 4}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("host is required")))
	})

	It("requires dimensions", func() {
		_, err := qdrant.NewDriver(context.Background(), qdrant.Config{Host: "localhost"}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("dimensions cannot be 0")))
	})
})

// These specs need a running Qdrant, e.g. RECALL_TEST_QDRANT_HOST=localhost.
var _ = Describe("Driver against Qdrant", Ordered, func() {
	var (
		driver *qdrant.Driver
		ctx    context.Context
	)

	BeforeAll(func() {
		host := os.Getenv("RECALL_TEST_QDRANT_HOST")
		if host == "" {
			Skip("RECALL_TEST_QDRANT_HOST not set")
		}
		port, _ := strconv.Atoi(os.Getenv("RECALL_TEST_QDRANT_PORT"))

		ctx = context.Background()
		var err error
		driver, err = qdrant.NewDriver(ctx, qdrant.Config{
			Host:           host,
			Port:           port,
			CollectionName: "recall_test_" + uuid.NewString()[:8],
			Dimensions:     4,
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	It("adds, queries, lists and deletes per user", func() {
		now := time.Now().UTC()
		Expect(driver.Add(ctx, []vector.Document{
			{ID: "a1", UserID: "alice", Content: "north", CreatedAt: now, Embedding: []float32{1, 0, 0, 0},
				Metadata: map[string]string{"conversation_id": "c1"}},
			{ID: "a2", UserID: "alice", Content: "east", CreatedAt: now.Add(time.Second), Embedding: []float32{0, 1, 0, 0}},
			{ID: "b1", UserID: "bob", Content: "bob", CreatedAt: now, Embedding: []float32{1, 0, 0, 0}},
		})).To(Succeed())

		results, err := driver.Query(ctx, "alice", []float32{1, 0.1, 0, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("a1"))
		Expect(results[0].Metadata).To(HaveKeyWithValue("conversation_id", "c1"))

		docs, err := driver.List(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(2))
		Expect(docs[0].ID).To(Equal("a1"))

		Expect(driver.Delete(ctx, []string{"a1"})).To(Succeed())
		docs, err = driver.List(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].ID).To(Equal("a2"))
	})
})
