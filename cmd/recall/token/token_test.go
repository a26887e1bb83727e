package tokencmder_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	tokencmder "github.com/papercomputeco/recall/cmd/recall/token"
	"github.com/papercomputeco/recall/pkg/auth"
)

var _ = Describe("Token command", func() {
	var (
		configDir string
		out       *bytes.Buffer
	)

	newCmd := func(args ...string) *cobra.Command {
		root := &cobra.Command{Use: "recall"}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(tokencmder.NewTokenCmd())
		root.SetOut(out)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"token", "--config-dir", configDir}, args...))
		return root
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	It("mints a token the server's validator accepts", func() {
		GinkgoT().Setenv("RECALL_AUTH_SECRET", "dev-secret")

		Expect(newCmd("--user", "alice").Execute()).To(Succeed())

		v, err := auth.NewValidator(auth.Config{Secret: "dev-secret", Issuer: "recall"})
		Expect(err).NotTo(HaveOccurred())
		user, err := v.UserID(strings.TrimSpace(out.String()))
		Expect(err).NotTo(HaveOccurred())
		Expect(user).To(Equal("alice"))
	})

	It("requires --user", func() {
		GinkgoT().Setenv("RECALL_AUTH_SECRET", "dev-secret")
		Expect(newCmd().Execute()).To(HaveOccurred())
	})

	It("fails without a signing key", func() {
		GinkgoT().Setenv("RECALL_AUTH_SECRET", "")
		err := newCmd("--user", "alice").Execute()
		Expect(err).To(MatchError(ContainSubstring("no signing key configured")))
	})
})
