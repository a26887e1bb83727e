package mem0_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/memory/mem0"
)

var _ memory.Driver = (*mem0.Driver)(nil)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

var _ = Describe("Driver", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		driver   *mem0.Driver
		mu       sync.Mutex
		requests []recorded
		status   int
		response string
	)

	BeforeEach(func() {
		ctx = context.Background()
		requests = nil
		status = http.StatusOK
		response = `[]`

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := recorded{
				method: r.Method,
				path:   r.URL.Path,
				query:  r.URL.RawQuery,
				auth:   r.Header.Get("Authorization"),
			}
			if r.Body != nil {
				_ = json.NewDecoder(r.Body).Decode(&rec.body)
			}
			mu.Lock()
			requests = append(requests, rec)
			mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(response))
		}))

		var err error
		driver, err = mem0.NewDriver(mem0.Config{URL: server.URL, APIKey: "secret"})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an API key", func() {
		_, err := mem0.NewDriver(mem0.Config{})
		Expect(err).To(MatchError(memory.ErrNotConfigured))
	})

	Describe("Add", func() {
		It("posts the content as a user message with metadata", func() {
			err := driver.Add(ctx, "alice", "user: hello", memory.Metadata{
				ConversationID: "c1",
				MessageCount:   2,
				Source:         "chat_session",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(requests).To(HaveLen(1))
			req := requests[0]
			Expect(req.method).To(Equal(http.MethodPost))
			Expect(req.path).To(Equal("/v1/memories/"))
			Expect(req.auth).To(Equal("Token secret"))
			Expect(req.body["user_id"]).To(Equal("alice"))

			msgs := req.body["messages"].([]any)
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].(map[string]any)["content"]).To(Equal("user: hello"))

			meta := req.body["metadata"].(map[string]any)
			Expect(meta["conversation_id"]).To(Equal("c1"))
			Expect(meta["message_count"]).To(BeNumerically("==", 2))
		})

		It("returns an error on a non-2xx status", func() {
			status = http.StatusInternalServerError
			response = `{"error":"boom"}`
			Expect(driver.Add(ctx, "alice", "x", memory.Metadata{})).To(HaveOccurred())
		})
	})

	Describe("Search", func() {
		It("decodes a bare array", func() {
			response = `[{"id":"m1","memory":"likes tea","user_id":"alice"}]`

			entries, err := driver.Search(ctx, "alice", "tea", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ID).To(Equal("m1"))
			Expect(entries[0].Content).To(Equal("likes tea"))

			Expect(requests[0].path).To(Equal("/v1/memories/search/"))
			Expect(requests[0].body["query"]).To(Equal("tea"))
			Expect(requests[0].body["limit"]).To(BeNumerically("==", 3))
		})

		It("decodes a results envelope and falls back to text", func() {
			response = `{"results":[{"id":"m1","text":"from text"},{"id":"m2"}]}`

			entries, err := driver.Search(ctx, "alice", "q", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Content).To(Equal("from text"))
			Expect(entries[0].UserID).To(Equal("alice"))
		})
	})

	Describe("List", func() {
		It("queries by user id and keeps metadata", func() {
			response = `[{"id":"m1","memory":"a","metadata":{"timestamp":"2025-01-01T00:00:00Z"},"created_at":"2025-01-01T00:00:00.5Z"}]`

			entries, err := driver.List(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(requests[0].method).To(Equal(http.MethodGet))
			Expect(requests[0].query).To(Equal("user_id=alice"))
			Expect(entries[0].Metadata.Timestamp).To(Equal("2025-01-01T00:00:00Z"))
			Expect(entries[0].CreatedAt.IsZero()).To(BeFalse())
		})
	})

	Describe("Delete", func() {
		It("deletes by id", func() {
			Expect(driver.Delete(ctx, "alice", "m1")).To(Succeed())
			Expect(requests[0].method).To(Equal(http.MethodDelete))
			Expect(requests[0].path).To(Equal("/v1/memories/m1/"))
		})

		It("treats a missing memory as deleted", func() {
			status = http.StatusNotFound
			Expect(driver.Delete(ctx, "alice", "m1")).To(Succeed())
		})

		It("fails on server errors", func() {
			status = http.StatusBadGateway
			Expect(driver.Delete(ctx, "alice", "m1")).To(HaveOccurred())
		})
	})
})
