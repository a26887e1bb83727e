// Package tokencmder provides the token command, which mints development
// bearer tokens for a recall server.
package tokencmder

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/auth"
	"github.com/papercomputeco/recall/pkg/config"
)

const tokenLongDesc string = `Mint a signed bearer token for local development.

The token is signed with the auth settings the server uses (auth.secret,
auth.issuer and auth.audience from config.toml or RECALL_AUTH_* variables),
so "recall serve" on the same machine accepts it. The token is printed to
stdout.

RS256 tokens need the signing key: pass --private-key-file.

Examples:
  recall token --user alice
  recall token --user alice --ttl 1h
  recall config set client.token "$(recall token --user alice)"`

const tokenShortDesc string = "Mint a development bearer token"

type tokenCommander struct {
	user           string
	ttl            time.Duration
	privateKeyFile string
}

func NewTokenCmd() *cobra.Command {
	cmder := &tokenCommander{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: tokenShortDesc,
		Long:  tokenLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			token, err := cmder.mint(configDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cmder.user, "user", "u", "", "User id placed in the token subject")
	cmd.Flags().DurationVar(&cmder.ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")
	cmd.Flags().StringVar(&cmder.privateKeyFile, "private-key-file", "", "PEM RSA private key for RS256 signing")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func (c *tokenCommander) mint(configDir string) (string, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return "", err
	}

	ac := auth.Config{
		SigningMethod: v.GetString("auth.signing_method"),
		Secret:        v.GetString("auth.secret"),
		Issuer:        v.GetString("auth.issuer"),
		Audience:      v.GetString("auth.audience"),
	}

	if c.privateKeyFile != "" {
		pem, err := os.ReadFile(c.privateKeyFile)
		if err != nil {
			return "", fmt.Errorf("reading private key: %w", err)
		}
		ac.PrivateKey = string(pem)
	}

	if ac.Secret == "" && ac.PrivateKey == "" {
		return "", errors.New("no signing key configured: set auth.secret or RECALL_AUTH_SECRET")
	}

	issuer, err := auth.NewIssuer(ac)
	if err != nil {
		return "", fmt.Errorf("creating token issuer: %w", err)
	}

	return issuer.Mint(c.user, c.ttl)
}
