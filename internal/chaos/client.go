// Package chaos fires hostile and concurrent traffic at a running feature
// board API and checks that it keeps its promises: one vote per email,
// counts that match accepted votes, 4xx for bad input, never 5xx.
package chaos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client is a thin JSON client for the /api/features endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient targets baseURL, e.g. "http://localhost:3000/api".
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type Feature struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	AuthorEmail string `json:"authorEmail"`
	UpvoteCount int    `json:"upvoteCount"`
	CreatedAt   string `json:"createdAt"`
}

type Listing struct {
	Data []Feature `json:"data"`
	Meta struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"meta"`
}

// Response is the raw outcome of one request. Status is 0 when the request
// never got an answer (connection refused, timeout).
type Response struct {
	Status int
	Body   []byte
	Err    error
}

// Do sends body (which may be nil) with the given content type.
func (c *Client) Do(ctx context.Context, method, path, contentType string, body []byte) Response {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Response{Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	return Response{Status: resp.StatusCode, Body: b, Err: err}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) Response {
	b, err := json.Marshal(payload)
	if err != nil {
		return Response{Err: err}
	}
	return c.Do(ctx, http.MethodPost, path, "application/json", b)
}

// CreateFeature returns the created feature, or nil with the response when
// the server did not answer 201.
func (c *Client) CreateFeature(ctx context.Context, text, email string) (*Feature, Response) {
	resp := c.postJSON(ctx, "/features", map[string]string{"text": text, "authorEmail": email})
	if resp.Status != http.StatusCreated {
		return nil, resp
	}
	var f Feature
	if err := json.Unmarshal(resp.Body, &f); err != nil {
		resp.Err = fmt.Errorf("decoding feature: %w", err)
		return nil, resp
	}
	return &f, resp
}

func (c *Client) Upvote(ctx context.Context, id, email string) Response {
	return c.postJSON(ctx, "/features/"+url.PathEscape(id)+"/upvote", map[string]string{"email": email})
}

// ListRaw requests a page with arbitrary query values so callers can send
// values the server is expected to reject.
func (c *Client) ListRaw(ctx context.Context, query url.Values) Response {
	path := "/features"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.Do(ctx, http.MethodGet, path, "", nil)
}

func (c *Client) List(ctx context.Context, page, limit int) (*Listing, Response) {
	resp := c.ListRaw(ctx, url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	})
	if resp.Status != http.StatusOK {
		return nil, resp
	}
	var l Listing
	if err := json.Unmarshal(resp.Body, &l); err != nil {
		resp.Err = fmt.Errorf("decoding listing: %w", err)
		return nil, resp
	}
	return &l, resp
}
