package prompt_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/prompt"
)

var _ prompt.Source = prompt.Static("")
var _ prompt.Source = (*prompt.File)(nil)

var _ = Describe("Static", func() {
	It("falls back to the default prompt", func() {
		Expect(prompt.Static("").Prompt()).To(Equal(prompt.DefaultSystemPrompt))
	})

	It("returns the configured prompt", func() {
		Expect(prompt.Static("Be terse.").Prompt()).To(Equal("Be terse."))
	})
})

var _ = Describe("File", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "system.txt")
	})

	It("fails when the file does not exist", func() {
		_, err := prompt.NewFile(path, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("fails when the file is empty", func() {
		Expect(os.WriteFile(path, []byte("  \n"), 0o600)).To(Succeed())
		_, err := prompt.NewFile(path, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("empty")))
	})

	It("loads and trims the prompt", func() {
		Expect(os.WriteFile(path, []byte("You are a pirate.\n"), 0o600)).To(Succeed())

		f, err := prompt.NewFile(path, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.Prompt()).To(Equal("You are a pirate."))
	})

	It("reloads when the file changes", func() {
		Expect(os.WriteFile(path, []byte("first"), 0o600)).To(Succeed())

		f, err := prompt.NewFile(path, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(os.WriteFile(path, []byte("second"), 0o600)).To(Succeed())
		Eventually(f.Prompt, 2*time.Second, 20*time.Millisecond).Should(Equal("second"))
	})

	It("keeps the last good prompt when the file is emptied", func() {
		Expect(os.WriteFile(path, []byte("keep me"), 0o600)).To(Succeed())

		f, err := prompt.NewFile(path, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(os.WriteFile(path, []byte(""), 0o600)).To(Succeed())
		Consistently(f.Prompt, 200*time.Millisecond, 20*time.Millisecond).Should(Equal("keep me"))
	})
})
