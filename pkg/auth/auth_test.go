package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/auth"
)

var _ = Describe("Validator", func() {
	Context("HS256", func() {
		var (
			cfg       auth.Config
			validator *auth.Validator
			issuer    *auth.Issuer
		)

		BeforeEach(func() {
			cfg = auth.Config{Secret: "test-secret", Issuer: "recall", Audience: "recall-api"}

			var err error
			validator, err = auth.NewValidator(cfg)
			Expect(err).NotTo(HaveOccurred())
			issuer, err = auth.NewIssuer(cfg)
			Expect(err).NotTo(HaveOccurred())
		})

		It("accepts minted tokens with or without the bearer prefix", func() {
			token, err := issuer.Mint("alice", time.Hour)
			Expect(err).NotTo(HaveOccurred())

			userID, err := validator.UserID(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("alice"))

			userID, err = validator.UserID("Bearer " + token)
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("alice"))
		})

		It("reports a missing token", func() {
			_, err := validator.UserID("Bearer ")
			Expect(errors.Is(err, auth.ErrMissingToken)).To(BeTrue())
		})

		It("rejects tokens signed with another secret", func() {
			other, err := auth.NewIssuer(auth.Config{Secret: "other", Issuer: "recall", Audience: "recall-api"})
			Expect(err).NotTo(HaveOccurred())
			token, err := other.Mint("alice", time.Hour)
			Expect(err).NotTo(HaveOccurred())

			_, err = validator.UserID(token)
			Expect(errors.Is(err, auth.ErrInvalidToken)).To(BeTrue())
		})

		It("rejects expired tokens", func() {
			claims := jwt.RegisteredClaims{
				Subject:   "alice",
				Issuer:    "recall",
				Audience:  jwt.ClaimStrings{"recall-api"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
			Expect(err).NotTo(HaveOccurred())

			_, err = validator.UserID(token)
			Expect(errors.Is(err, auth.ErrExpiredToken)).To(BeTrue())
		})

		It("rejects tokens for another audience", func() {
			other, err := auth.NewIssuer(auth.Config{Secret: "test-secret", Issuer: "recall", Audience: "elsewhere"})
			Expect(err).NotTo(HaveOccurred())
			token, err := other.Mint("alice", time.Hour)
			Expect(err).NotTo(HaveOccurred())

			_, err = validator.UserID(token)
			Expect(errors.Is(err, auth.ErrInvalidToken)).To(BeTrue())
		})

		It("rejects tokens without a subject", func() {
			claims := jwt.RegisteredClaims{
				Issuer:    "recall",
				Audience:  jwt.ClaimStrings{"recall-api"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
			Expect(err).NotTo(HaveOccurred())

			_, err = validator.UserID(token)
			Expect(errors.Is(err, auth.ErrInvalidClaims)).To(BeTrue())
		})

		It("rejects the none algorithm", func() {
			claims := jwt.RegisteredClaims{
				Subject:   "alice",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
			Expect(err).NotTo(HaveOccurred())

			_, err = validator.UserID(token)
			Expect(errors.Is(err, auth.ErrInvalidToken)).To(BeTrue())
		})

		It("refuses to mint without a subject", func() {
			_, err := issuer.Mint("", time.Hour)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("RS256", func() {
		It("round trips tokens signed with the private key", func() {
			key, err := rsa.GenerateKey(rand.Reader, 2048)
			Expect(err).NotTo(HaveOccurred())

			privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
			publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			Expect(err).NotTo(HaveOccurred())
			publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

			issuer, err := auth.NewIssuer(auth.Config{SigningMethod: "RS256", PrivateKey: string(privatePEM)})
			Expect(err).NotTo(HaveOccurred())
			validator, err := auth.NewValidator(auth.Config{SigningMethod: "RS256", PublicKey: string(publicPEM)})
			Expect(err).NotTo(HaveOccurred())

			token, err := issuer.Mint("bob", 0)
			Expect(err).NotTo(HaveOccurred())

			userID, err := validator.UserID(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("bob"))
		})

		It("requires a public key", func() {
			_, err := auth.NewValidator(auth.Config{SigningMethod: "RS256"})
			Expect(err).To(HaveOccurred())
		})
	})

	It("rejects unknown signing methods", func() {
		_, err := auth.NewValidator(auth.Config{SigningMethod: "ES512", Secret: "x"})
		Expect(err).To(HaveOccurred())
	})
})
