// Package client talks to the board's GraphQL endpoint. It keeps the session
// cookie in a jar, merges paginated post lists and keeps the current user
// cached between calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotAuthenticated means the server refused an operation for lack of a
// session. Callers should send the user to the login flow.
var ErrNotAuthenticated = errors.New("not authenticated")

// GraphQLError carries the error messages of a response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// Client is safe for concurrent use.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	group    singleflight.Group
	cache    *Cache
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its jar, if any, keeps the session.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the GraphQL endpoint, e.g. http://localhost:4000/graphql.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint: u,
		http:     &http.Client{Jar: jar, Timeout: 15 * time.Second},
		cache:    NewCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Cache exposes the normalized client cache.
func (c *Client) Cache() *Cache { return c.cache }

// Cookies returns the cookies the jar holds for the endpoint.
func (c *Client) Cookies() []*http.Cookie {
	if c.http.Jar == nil {
		return nil
	}
	return c.http.Jar.Cookies(c.endpoint)
}

// SetCookies seeds the jar, e.g. with a session restored from disk.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	if c.http.Jar != nil {
		c.http.Jar.SetCookies(c.endpoint, cookies)
	}
}

type request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// query runs a read and decodes its data into out. Identical reads in flight
// at the same time share one round trip.
func (c *Client) query(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return err
	}
	v, err, _ := c.group.Do(string(body), func() (interface{}, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return err
	}
	return decode(v.(json.RawMessage), out)
}

// mutate runs a write. Every call reaches the server, even when an identical
// one is in flight.
func (c *Client) mutate(ctx context.Context, mutation string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(request{Query: mutation, Variables: vars})
	if err != nil {
		return err
	}
	data, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	return decode(data, out)
}

func decode(data json.RawMessage, out interface{}) error {
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graphql request failed: %s", resp.Status)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(r.Errors) > 0 {
		msgs := make([]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			if strings.Contains(e.Message, ErrNotAuthenticated.Error()) {
				return nil, ErrNotAuthenticated
			}
			msgs = append(msgs, e.Message)
		}
		return nil, &GraphQLError{Messages: msgs}
	}
	return r.Data, nil
}
