// Package ollama streams chat completions from Ollama's /api/chat endpoint.
package ollama

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/recall/pkg/completion"
	"github.com/papercomputeco/recall/pkg/llm"
)

const (
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when a request names no model.
	DefaultModel = "llama3.2"

	maxImageBytes     = 20 << 20
	maxImageRedirects = 5
	imageFetchTimeout = 30 * time.Second
)

var errImageHost = errors.New("image host not allowed")

// Config configures the Ollama provider.
type Config struct {
	BaseURL string

	// ImageHosts lists the hosts image attachments may be downloaded from,
	// as "host" or "host:port". Images elsewhere, or behind a scheme other
	// than http(s), are dropped from the request. Empty disables image
	// downloads.
	ImageHosts []string

	Logger *slog.Logger
}

// Provider implements completion.Provider for Ollama.
type Provider struct {
	client     *resty.Client
	images     *resty.Client
	imageHosts map[string]struct{}
	logger     *slog.Logger
}

// New creates an Ollama completion provider. No client timeout is set:
// streams run as long as the caller's context allows.
func New(c Config) *Provider {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	p := &Provider{
		client: resty.New().
			SetBaseURL(c.BaseURL).
			SetHeader("Content-Type", "application/json"),
		imageHosts: make(map[string]struct{}, len(c.ImageHosts)),
		logger:     c.Logger,
	}
	for _, h := range c.ImageHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			p.imageHosts[h] = struct{}{}
		}
	}

	// Redirects are held to the same allowlist as the first request.
	p.images = resty.New().
		SetTimeout(imageFetchTimeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return fmt.Errorf("stopped after %d redirects", maxImageRedirects)
			}
			return p.checkImageURL(req.URL)
		}))

	return p
}

func (p *Provider) Name() string {
	return "ollama"
}

// Stream posts the request with stream enabled and decodes the NDJSON
// response line by line.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest, onChunk completion.ChunkFunc) (*llm.ChatResponse, error) {
	body, err := p.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetDoNotParseResponse(true).
		Post("/api/chat")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: sending request: %w", completion.ErrUpstream, err)
	}

	raw := resp.RawBody()
	defer raw.Close()

	if resp.StatusCode() != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(raw, 4096))
		return nil, &completion.StatusError{Provider: p.Name(), StatusCode: resp.StatusCode(), Body: string(errBody)}
	}

	var acc completion.Accumulator
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var r chatResponse
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("%w: decoding stream line: %w", completion.ErrUpstream, err)
		}
		if r.Error != "" {
			return nil, fmt.Errorf("%w: ollama: %s", completion.ErrUpstream, r.Error)
		}

		chunk := toChunk(r)
		acc.Add(chunk)
		if err := onChunk(chunk); err != nil {
			return nil, err
		}
		if r.Done {
			return acc.Response(), nil
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading stream: %w", completion.ErrUpstream, err)
	}
	return nil, fmt.Errorf("%w: stream ended before done", completion.ErrUpstream)
}

func (p *Provider) buildRequest(ctx context.Context, req *llm.ChatRequest) (*chatRequest, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	out := &chatRequest{
		Model:    model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
		Stream:   true,
	}
	if req.Temperature != nil || req.MaxTokens != nil || len(req.Stop) > 0 {
		out.Options = &requestOption{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}

	for _, m := range req.Messages {
		msg := chatMessage{Role: m.Role, Content: m.GetText()}
		for _, imageURL := range m.ImageURLs() {
			img, err := p.fetchImage(ctx, imageURL)
			if err != nil {
				// the text still goes through without the image
				p.logger.Warn("skipping image attachment", "url", imageURL, "error", err)
				continue
			}
			msg.Images = append(msg.Images, img)
		}
		out.Messages = append(out.Messages, msg)
	}
	return out, nil
}

// checkImageURL accepts only http(s) URLs on an allowlisted host.
func (p *Provider) checkImageURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", errImageHost, u.Scheme)
	}
	host := strings.ToLower(u.Host)
	if _, ok := p.imageHosts[host]; ok {
		return nil
	}
	if _, ok := p.imageHosts[strings.ToLower(u.Hostname())]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s", errImageHost, host)
}

// fetchImage downloads an image and base64-encodes it, since Ollama only
// accepts inline images.
func (p *Provider) fetchImage(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if err := p.checkImageURL(u); err != nil {
		return "", err
	}

	resp, err := p.images.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return "", err
	}
	raw := resp.RawBody()
	defer raw.Close()

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("image fetch returned status %d", resp.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(raw, maxImageBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func toChunk(r chatResponse) llm.StreamChunk {
	chunk := llm.StreamChunk{
		Model:     r.Model,
		CreatedAt: r.CreatedAt,
		Delta:     r.Message.Content,
		Done:      r.Done,
	}
	if r.Done {
		chunk.StopReason = r.DoneReason
		if chunk.StopReason == "" {
			chunk.StopReason = "stop"
		}
		chunk.Usage = &llm.Usage{
			PromptTokens:     r.PromptEvalCount,
			CompletionTokens: r.EvalCount,
			TotalTokens:      r.PromptEvalCount + r.EvalCount,
			TotalDurationNs:  r.TotalDuration,
			PromptDurationNs: r.PromptEvalDuration,
		}
	}
	return chunk
}

var _ completion.Provider = (*Provider)(nil)
