// Package airtable is the HTTP accessor for the external Airtable REST API.
// A Client is bound to one credential and owns that credential's advisory
// rate-limit state and table-metadata cache.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/types"
)

// DefaultBaseURL is the production Airtable REST endpoint.
const DefaultBaseURL = "https://api.airtable.com"

// metadataCacheTTL bounds how long a base's table schema is served from cache.
const metadataCacheTTL = 5 * time.Minute

var (
	// ErrRateLimited is returned when Airtable answers 429.
	ErrRateLimited = errors.New("airtable rate limit exceeded")
	// ErrRecordNotFound is returned when Airtable answers 404 for a record.
	ErrRecordNotFound = errors.New("airtable record not found")
)

// Record is one row of an Airtable table.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime time.Time      `json:"createdTime"`
}

// Base is an Airtable base visible to the credential.
type Base struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Field is one column of a table schema.
type Field struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is a table schema within a base.
type Table struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Client talks to the Airtable REST API with one bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
	st      *state
}

// New creates a Client for one credential. baseURL is overridable for tests.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		st:      newState(),
	}
}

// GetRecord fetches one record.
func (c *Client) GetRecord(ctx context.Context, baseID, tableID, recordID string) (*Record, error) {
	var record Record
	path := fmt.Sprintf("/v0/%s/%s/%s", baseID, tableID, recordID)
	if err := c.do(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateRecord creates a record and returns it with its provider-assigned id.
func (c *Client) CreateRecord(ctx context.Context, baseID, tableID string, fields map[string]any) (*Record, error) {
	var record Record
	path := fmt.Sprintf("/v0/%s/%s", baseID, tableID)
	body := map[string]any{"fields": fields, "typecast": true}
	if err := c.do(ctx, http.MethodPost, path, body, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateRecord patches the given fields of an existing record.
func (c *Client) UpdateRecord(ctx context.Context, baseID, tableID, recordID string, fields map[string]any) (*Record, error) {
	var record Record
	path := fmt.Sprintf("/v0/%s/%s/%s", baseID, tableID, recordID)
	body := map[string]any{"fields": fields, "typecast": true}
	if err := c.do(ctx, http.MethodPatch, path, body, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteRecord deletes a record.
func (c *Client) DeleteRecord(ctx context.Context, baseID, tableID, recordID string) error {
	path := fmt.Sprintf("/v0/%s/%s/%s", baseID, tableID, recordID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListRecords fetches one page of records. An empty returned offset means the
// listing is complete.
func (c *Client) ListRecords(ctx context.Context, baseID, tableID, offset string, pageSize int) ([]Record, string, error) {
	query := url.Values{}
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}
	if offset != "" {
		query.Set("offset", offset)
	}

	path := fmt.Sprintf("/v0/%s/%s", baseID, tableID)
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page struct {
		Records []Record `json:"records"`
		Offset  string   `json:"offset"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, "", err
	}
	return page.Records, page.Offset, nil
}

// ListBases lists the bases visible to the credential.
func (c *Client) ListBases(ctx context.Context) ([]Base, error) {
	var result struct {
		Bases []Base `json:"bases"`
	}
	if err := c.do(ctx, http.MethodGet, "/v0/meta/bases", nil, &result); err != nil {
		return nil, err
	}
	return result.Bases, nil
}

// ListTables lists the table schemas of a base. Results are cached per base
// for a short TTL because form design reads them repeatedly.
func (c *Client) ListTables(ctx context.Context, baseID string) ([]Table, error) {
	if tables, ok := c.st.cachedTables(baseID, time.Now()); ok {
		return tables, nil
	}

	var result struct {
		Tables []Table `json:"tables"`
	}
	path := fmt.Sprintf("/v0/meta/bases/%s/tables", baseID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	c.st.storeTables(baseID, result.Tables, time.Now())
	return result.Tables, nil
}

// do issues one API request: waits out the advisory rate budget, sends with
// bearer auth, refreshes the budget from response headers, decodes into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.st.waitForBudget(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("airtable request failed: %w", err)
	}
	defer resp.Body.Close()

	c.st.observeHeaders(resp.Header, time.Now())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("airtable rate limited", "path", path)
		return ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, method, path)
	case resp.StatusCode >= 400:
		return decodeAPIError(resp, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode airtable response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, method, path string) error {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return fmt.Errorf("airtable %s %s: %w", method, path, &types.CustomError{
			Code:    resp.StatusCode,
			Message: payload.Error.Message,
			Type:    payload.Error.Type,
		})
	}
	return fmt.Errorf("airtable %s %s: status %d", method, path, resp.StatusCode)
}
