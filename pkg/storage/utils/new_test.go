package storageutils_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
	storageutils "github.com/papercomputeco/recall/pkg/storage/utils"
)

var _ = Describe("NewDriver", func() {
	ctx := context.Background()

	It("builds the in-memory driver", func() {
		d, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: "memory"})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&inmemory.Driver{}))
	})

	It("builds the sqlite driver at the given path", func() {
		path := filepath.Join(GinkgoT().TempDir(), "recall.db")
		d, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: "sqlite", SQLitePath: path})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(d.Close)
		Expect(d).To(BeAssignableToTypeOf(&sqlite.Driver{}))
		Expect(path).To(BeAnExistingFile())
	})

	It("requires connection settings for remote drivers", func() {
		_, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: "postgres"})
		Expect(err).To(MatchError(ContainSubstring("postgres dsn is required")))

		_, err = storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: "mongo"})
		Expect(err).To(MatchError(ContainSubstring("mongo uri is required")))

		_, err = storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: "sqlite"})
		Expect(err).To(MatchError(ContainSubstring("sqlite path is required")))
	})

	It("rejects unknown drivers", func() {
		_, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: "cassandra"})
		Expect(err).To(MatchError("unsupported storage driver: cassandra"))
	})
})
