package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger probes Qdrant with its HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger returns a Pinger for client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

func (p *QdrantPinger) Name() string { return "qdrant" }

func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// HTTPPinger issues a GET against a URL and expects a 2xx reply. It probes
// model backends without spending tokens, e.g. Ollama's /api/tags.
type HTTPPinger struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPPinger returns a Pinger labelled name that GETs url.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{name: name, url: url, client: http.DefaultClient}
}

func (p *HTTPPinger) Name() string { return p.name }

func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: HTTP %d", p.url, resp.StatusCode)
	}
	return nil
}

// FuncPinger adapts a plain probe function, such as a store's Ping method.
type FuncPinger struct {
	name string
	fn   func(context.Context) error
}

// NewFuncPinger returns a Pinger labelled name that calls fn.
func NewFuncPinger(name string, fn func(context.Context) error) *FuncPinger {
	return &FuncPinger{name: name, fn: fn}
}

func (p *FuncPinger) Name() string                   { return p.name }
func (p *FuncPinger) Ping(ctx context.Context) error { return p.fn(ctx) }

// errNoDocuments is reported by the index pinger before the first ingestion.
var errNoDocuments = errors.New("no documents indexed")

// NewIndexPinger reports the engine as unready until documents are indexed.
func NewIndexPinger(e Engine) *FuncPinger {
	return NewFuncPinger("index", func(context.Context) error {
		if !e.Ready() {
			return errNoDocuments
		}
		return nil
	})
}
