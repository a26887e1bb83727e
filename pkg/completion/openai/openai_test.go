package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/completion"
	"github.com/papercomputeco/recall/pkg/completion/openai"
	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/logger"
)

var _ = Describe("Provider", func() {
	var (
		server   *httptest.Server
		received map[string]any
		authz    string
		events   []string
		status   int
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusOK
		events = []string{
			`{"id":"1","created":1748779200,"model":"llama-4","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
			`{"id":"1","created":1748779200,"model":"llama-4","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
			`{"id":"1","created":1748779200,"model":"llama-4","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"x_groq":{"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}}`,
			`[DONE]`,
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/chat/completions"))
			authz = r.Header.Get("Authorization")
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())

			if status != http.StatusOK {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
				return
			}

			w.Header().Set("Content-Type", "text/event-stream")
			for _, e := range events {
				_, _ = w.Write([]byte("data: " + e + "\n\n"))
				w.(http.Flusher).Flush()
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newProvider := func() *openai.Provider {
		return openai.New(openai.Config{Name: "groq", BaseURL: server.URL, APIKey: "sk-test", Logger: logger.Nop()})
	}

	It("streams deltas until [DONE]", func() {
		temp := 0.7
		var deltas []string
		resp, err := newProvider().Stream(context.Background(), &llm.ChatRequest{
			Model:       "llama-4",
			Temperature: &temp,
			Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		}, func(c llm.StreamChunk) error {
			deltas = append(deltas, c.Delta)
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Join(deltas, "")).To(Equal("Hello"))
		Expect(resp.Message.GetText()).To(Equal("Hello"))
		Expect(resp.StopReason).To(Equal("stop"))
		Expect(resp.Usage.TotalTokens).To(Equal(11))
		Expect(authz).To(Equal("Bearer sk-test"))
		Expect(received).To(HaveKeyWithValue("stream", true))
		Expect(received).To(HaveKeyWithValue("temperature", 0.7))
	})

	It("sends text-only messages as strings and images as parts", func() {
		_, err := newProvider().Stream(context.Background(), &llm.ChatRequest{
			Messages: []llm.Message{
				llm.NewTextMessage(llm.RoleSystem, "sys"),
				{
					Role: llm.RoleUser,
					Content: []llm.ContentBlock{
						{Type: llm.BlockTypeText, Text: "what is this"},
						{Type: llm.BlockTypeImage, ImageURL: "https://cdn.example/img.png"},
					},
				},
			},
		}, func(llm.StreamChunk) error { return nil })
		Expect(err).NotTo(HaveOccurred())

		msgs := received["messages"].([]any)
		Expect(msgs[0].(map[string]any)["content"]).To(Equal("sys"))

		parts := msgs[1].(map[string]any)["content"].([]any)
		Expect(parts).To(HaveLen(2))
		Expect(parts[1]).To(HaveKeyWithValue("type", "image_url"))
		Expect(parts[1].(map[string]any)["image_url"]).To(HaveKeyWithValue("url", "https://cdn.example/img.png"))
	})

	It("surfaces API error messages", func() {
		status = http.StatusUnauthorized
		_, err := newProvider().Stream(context.Background(), &llm.ChatRequest{}, func(llm.StreamChunk) error { return nil })

		var statusErr *completion.StatusError
		Expect(errors.As(err, &statusErr)).To(BeTrue())
		Expect(statusErr.Provider).To(Equal("groq"))
		Expect(statusErr.Body).To(Equal("invalid api key"))
	})

	It("fails when the stream ends without [DONE]", func() {
		events = events[:2]
		_, err := newProvider().Stream(context.Background(), &llm.ChatRequest{}, func(llm.StreamChunk) error { return nil })
		Expect(err).To(MatchError(completion.ErrUpstream))
	})
})
