package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"time"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/auth"
	"github.com/papercomputeco/recall/pkg/chat"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

const testSecret = "api-test-secret"

type testEnv struct {
	server   *Server
	store    *inmemory.Driver
	mem      *testutils.MockMemoryDriver
	provider *testutils.MockCompletionProvider
	tokens   *auth.Issuer
}

func newTestEnv(opts ...func(*Config)) *testEnv {
	store := inmemory.NewDriver()
	mem := testutils.NewMockMemoryDriver()
	provider := testutils.NewMockCompletionProvider("Hi", " there")
	adapter := memory.NewAdapter(memory.Config{Driver: mem, Logger: logger.Nop()})

	orchestrator, err := chat.NewOrchestrator(chat.Config{
		Store:    store,
		Provider: provider,
		Logger:   logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	validator, err := auth.NewValidator(auth.Config{Secret: testSecret})
	Expect(err).NotTo(HaveOccurred())
	tokens, err := auth.NewIssuer(auth.Config{Secret: testSecret})
	Expect(err).NotTo(HaveOccurred())

	config := Config{
		ListenAddr:   ":0",
		Store:        store,
		Orchestrator: orchestrator,
		Editor:       chat.NewEditor(orchestrator, logger.Nop()),
		Memory:       adapter,
		Auth:         validator,
		Logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	server, err := NewServer(config)
	Expect(err).NotTo(HaveOccurred())

	return &testEnv{
		server:   server,
		store:    store,
		mem:      mem,
		provider: provider,
		tokens:   tokens,
	}
}

// do sends a request as user and returns the status and body.
func (e *testEnv) do(method, path, user string, body any) (int, []byte) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		token, err := e.tokens.Mint(user, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, out
}

func decode[T any](body []byte) T {
	var out T
	Expect(json.Unmarshal(body, &out)).To(Succeed())
	return out
}

func streamEvents(body []byte) []StreamEvent {
	var events []StreamEvent
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var ev StreamEvent
		Expect(json.Unmarshal(scanner.Bytes(), &ev)).To(Succeed())
		events = append(events, ev)
	}
	Expect(scanner.Err()).NotTo(HaveOccurred())
	return events
}
