package servecmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	servecmder "github.com/papercomputeco/recall/cmd/recall/serve"
	"github.com/papercomputeco/recall/pkg/config"
)

var _ = Describe("Serve command", func() {
	var configDir string

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		GinkgoT().Setenv("RECALL_AUTH_SECRET", "")
		GinkgoT().Setenv("RECALL_STORAGE_DRIVER", "")
	})

	execute := func(args ...string) error {
		root := &cobra.Command{Use: "recall", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().BoolP("debug", "d", false, "")
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(servecmder.NewServeCmd())
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"serve", "--config-dir", configDir}, args...))
		return root.Execute()
	}

	It("registers every serve flag from the registry", func() {
		cmd := servecmder.NewServeCmd()
		for key, flag := range config.ServeFlags {
			f := cmd.Flags().Lookup(flag.Name)
			Expect(f).NotTo(BeNil(), "missing flag for %s", key)
			Expect(f.Shorthand).To(Equal(flag.Shorthand))
		}
	})

	It("defaults flags to the config defaults", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8080"))
		Expect(cmd.Flags().Lookup("provider").DefValue).To(Equal("ollama"))
		Expect(cmd.Flags().Lookup("max-context-messages").DefValue).To(Equal("20"))
		Expect(cmd.Flags().Lookup("mcp").DefValue).To(Equal("false"))
	})

	It("refuses to start without a signing key", func() {
		err := execute("--storage-driver", "memory")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("auth"))
	})

	It("rejects an unknown storage driver", func() {
		GinkgoT().Setenv("RECALL_AUTH_SECRET", "dev-secret")

		err := execute("--storage-driver", "cassandra")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported storage driver"))
	})

	It("rejects an unknown completion provider", func() {
		GinkgoT().Setenv("RECALL_AUTH_SECRET", "dev-secret")

		err := execute("--storage-driver", "memory", "--provider", "nope")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported completion provider"))
	})

	It("rejects a missing system prompt file", func() {
		GinkgoT().Setenv("RECALL_AUTH_SECRET", "dev-secret")

		err := execute("--storage-driver", "memory", "--system-prompt-file", configDir+"/missing.md")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("system prompt"))
	})

	It("reads settings from config.toml", func() {
		configer, err := config.NewConfiger(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(configer.SetConfigValue("auth.secret", "from-file")).To(Succeed())
		Expect(configer.SetConfigValue("storage.driver", "cassandra")).To(Succeed())

		err = execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported storage driver: cassandra"))
	})
})
