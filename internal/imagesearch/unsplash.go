// AngelaMos | 2026
// unsplash.go

package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/carterperez-dev/templates/imagegate/internal/config"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

var ErrNoResults = errors.New("no image found for query")

// Searcher finds one image for a free-text query and returns its bytes.
// Failures of the remote service wrap core.ErrUpstream.
type Searcher interface {
	Search(ctx context.Context, query string) ([]byte, error)
}

type Unsplash struct {
	client    *http.Client
	baseURL   string
	accessKey string
	maxBytes  int64
}

func NewUnsplash(cfg config.ImageSearchConfig, client *http.Client) *Unsplash {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Unsplash{
		client:    client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		accessKey: cfg.AccessKey,
		maxBytes:  cfg.MaxBytes,
	}
}

type searchResponse struct {
	Results []struct {
		ID   string `json:"id"`
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

func (u *Unsplash) Search(ctx context.Context, query string) ([]byte, error) {
	imageURL, err := u.lookup(ctx, query)
	if err != nil {
		return nil, err
	}

	return u.download(ctx, imageURL)
}

func (u *Unsplash) lookup(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		u.baseURL+"/search/photos?"+params.Encode(),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+u.accessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("unsplash search: %w: %w", core.ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"unsplash search: status %d: %w",
			resp.StatusCode,
			core.ErrUpstream,
		)
	}

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode search response: %w: %w", core.ErrUpstream, err)
	}

	if len(body.Results) == 0 || body.Results[0].URLs.Regular == "" {
		return "", ErrNoResults
	}

	return body.Results[0].URLs.Regular, nil
}

func (u *Unsplash) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w: %w", core.ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"download image: status %d: %w",
			resp.StatusCode,
			core.ErrUpstream,
		)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download image: %w: %w", core.ErrUpstream, err)
	}
	if int64(len(data)) > u.maxBytes {
		return nil, fmt.Errorf("download image: exceeds %d bytes: %w", u.maxBytes, core.ErrUpstream)
	}

	return data, nil
}
