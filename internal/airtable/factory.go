package airtable

import (
	"log/slog"
	"sync"
)

// Factory hands out one Client per credential token so every caller touching
// the same credential shares its rate-limit state and metadata cache.
type Factory struct {
	baseURL string
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory creates a client factory. baseURL is overridable for tests.
func NewFactory(baseURL string, logger *slog.Logger) *Factory {
	return &Factory{
		baseURL: baseURL,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// ClientFor returns the shared Client for a token, creating it on first use.
func (f *Factory) ClientFor(token string) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[token]; ok {
		return client
	}
	client := New(f.baseURL, token, f.logger)
	f.clients[token] = client
	return client
}
