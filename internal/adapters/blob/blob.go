// Package blob stores memory posters in a content-addressed blob service.
// The publisher accepts raw bytes and returns a blob id; the aggregator
// serves blobs back by id. Both are plain HTTP endpoints.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client defaults.
const (
	defaultTimeout = 60 * time.Second
	defaultEpochs  = 5
	maxBlobBytes   = 32 << 20 // refuse anything past 32 MiB
)

// Sentinel kinds for blob errors.
var (
	ErrUploadFailed   = errors.New("blob upload failed")
	ErrRetrieveFailed = errors.New("blob retrieval failed")
	ErrTooLarge       = errors.New("blob exceeds size limit")
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithEpochs sets how many storage epochs uploads are kept for.
func WithEpochs(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.epochs = n
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.client = h
		}
	}
}

// Client talks to a publisher (writes) and an aggregator (reads).
type Client struct {
	publisherURL  string
	aggregatorURL string
	epochs        int
	client        *http.Client
}

// New creates a blob client.
func New(publisherURL, aggregatorURL string, opts ...Option) *Client {
	c := &Client{
		publisherURL:  publisherURL,
		aggregatorURL: aggregatorURL,
		epochs:        defaultEpochs,
		client:        &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// uploadResponse covers both publisher outcomes: a fresh store and a blob
// that some other writer already certified.
type uploadResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

// Store uploads data and returns its content-addressed blob id. Storing
// identical bytes twice returns the same id.
func (c *Client) Store(ctx context.Context, data []byte) (string, error) {
	if len(data) > maxBlobBytes {
		return "", ErrTooLarge
	}

	url := c.publisherURL + "/v1/blobs?epochs=" + strconv.Itoa(c.epochs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrUploadFailed, resp.Status)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode: %w", ErrUploadFailed, err)
	}

	switch {
	case out.NewlyCreated != nil:
		return out.NewlyCreated.BlobObject.BlobID, nil
	case out.AlreadyCertified != nil:
		return out.AlreadyCertified.BlobID, nil
	default:
		return "", fmt.Errorf("%w: unexpected publisher response", ErrUploadFailed)
	}
}

// Retrieve fetches a blob by id.
func (c *Client) Retrieve(ctx context.Context, blobID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(blobID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieveFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrRetrieveFailed, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrRetrieveFailed, err)
	}
	if len(data) > maxBlobBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// URL returns the public aggregator URL for a blob id, for display.
func (c *Client) URL(blobID string) string {
	return c.aggregatorURL + "/v1/blobs/" + blobID
}
