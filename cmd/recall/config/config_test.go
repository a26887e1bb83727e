package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/recall/cmd/recall/config"
	"github.com/papercomputeco/recall/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))

		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		// A local .recall dir makes the manager pick tmpDir over ~/.recall.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".recall"), 0o755)).To(Succeed())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() { _ = os.Chdir(origDir) })
	})

	Describe("set subcommand", func() {
		It("writes the value to the local config file", func() {
			Expect(run("set", "completion.provider", "groq")).To(Succeed())

			cfger, err := config.NewConfiger(filepath.Join(tmpDir, ".recall"))
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Completion.Provider).To(Equal("groq"))
		})

		It("masks secrets in its confirmation", func() {
			Expect(run("set", "auth.secret", "supersecretvalue")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("supersecretvalue"))
			Expect(out.String()).To(ContainSubstring("****alue"))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "completion.provider")).To(HaveOccurred())
		})

		It("rejects invalid uint values", func() {
			Expect(run("set", "worker.workers", "lots")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("prints a previously set value", func() {
			Expect(run("set", "completion.model", "qwen2.5")).To(Succeed())
			out.Reset()

			Expect(run("get", "completion.model")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("qwen2.5"))
		})

		It("prints <not set> for an empty key", func() {
			Expect(run("get", "storage.postgres_dsn")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key with secrets masked", func() {
			Expect(run("set", "completion.api_key", "sk-0123456789")).To(Succeed())
			out.Reset()

			Expect(run("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).NotTo(ContainSubstring("sk-0123456789"))
			Expect(out.String()).To(ContainSubstring("****6789"))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).To(HaveOccurred())
		})
	})
})
