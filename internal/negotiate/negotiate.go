// Package negotiate implements the negotiation HTTP contract of spec §6:
// POST {url}/negotiate?negotiateVersion=1, decoding either a redirection or
// a negotiation response, following redirects and tolerating 1xx
// informational replies.
//
// Grounded on the reference signalr.go's negotiate() function (request
// construction, bearer header, JSON body decode), extended with the
// redirection/1xx handling spec.md's C2 negotiation algorithm requires.
package negotiate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// maxRedirects bounds the redirection-follow loop so a misbehaving server
// cannot make negotiation spin forever.
const maxRedirects = 100

// AvailableTransport names one transport the server offers and the transfer
// formats it supports for that transport.
type AvailableTransport struct {
	Transport       string   `json:"transport"`
	TransferFormats []string `json:"transferFormats"`
}

// Response is the negotiation payload naming the connection and the
// transports available for it.
type Response struct {
	ConnectionID        string               `json:"connectionId"`
	ConnectionToken     string               `json:"connectionToken,omitempty"`
	AvailableTransports []AvailableTransport `json:"availableTransports"`
}

// Redirection is the alternate negotiation payload pointing the client at a
// different URL (optionally with a fresh access token).
type Redirection struct {
	URL         string `json:"url"`
	AccessToken string `json:"accessToken,omitempty"`
}

// Result is the outcome of a successful Negotiate call.
type Result struct {
	// Response is the final negotiation payload, after following any
	// redirection chain.
	Response *Response
	// URL is the (possibly redirected) URL the transport should connect to.
	URL string
	// AccessToken is the access token that should be used for the
	// transport connection, overriding the configured AccessTokenProvider
	// when non-empty (spec §4.1 step 3).
	AccessToken string
}

// HTTPClientFactory builds the *http.Client used for negotiation requests.
// Configurable per spec §6's httpClientFactory option.
type HTTPClientFactory func() *http.Client

// AccessTokenProvider returns the current bearer token, if any.
type AccessTokenProvider func() (string, error)

// Client performs the negotiation HTTP exchange.
type Client struct {
	HTTPClientFactory   HTTPClientFactory
	Headers             http.Header
	AccessTokenProvider AccessTokenProvider
}

// NewClient builds a negotiate.Client with the standard library default
// client factory and no headers/token provider.
func NewClient() *Client {
	return &Client{
		HTTPClientFactory: func() *http.Client { return http.DefaultClient },
	}
}

// Negotiate performs the POST {url}/negotiate?negotiateVersion=1 exchange,
// recursing through redirections per spec §4.1 step 3. tokenOverride, when
// set by a redirection response, takes precedence over AccessTokenProvider
// for the remainder of the chain and for the returned Result.
func (c *Client) Negotiate(ctx context.Context, url string) (Result, error) {
	tokenOverride := ""
	for attempt := 0; attempt < maxRedirects; attempt++ {
		resp, redirectURL, redirectToken, err := c.negotiateOnce(ctx, url, tokenOverride)
		if err != nil {
			return Result{}, err
		}
		if redirectURL == "" {
			return Result{Response: resp, URL: url, AccessToken: tokenOverride}, nil
		}
		url = redirectURL
		if redirectToken != "" {
			tokenOverride = redirectToken
		}
	}
	return Result{}, fmt.Errorf("hubconn: negotiate exceeded %d redirections", maxRedirects)
}

// negotiateOnce issues a single negotiate POST. If the server returns a
// redirection payload, redirectURL is non-empty and the caller should recurse
// with it instead of using resp.
func (c *Client) negotiateOnce(ctx context.Context, url, tokenOverride string) (resp *Response, redirectURL, redirectToken string, err error) {
	target := strings.TrimRight(url, "/") + "/negotiate?negotiateVersion=1"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(nil))
	if err != nil {
		return nil, "", "", err
	}
	for k, vs := range c.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	token := tokenOverride
	if token == "" && c.AccessTokenProvider != nil {
		t, terr := c.AccessTokenProvider()
		if terr != nil {
			return nil, "", "", terr
		}
		token = t
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := http.DefaultClient
	if c.HTTPClientFactory != nil {
		client = c.HTTPClientFactory()
	}

	httpResp, err := client.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode >= 100 && httpResp.StatusCode < 200:
		// Informational: the server has not yet produced a terminal
		// response. No state changes and nothing is logged; the same
		// request is simply issued again.
		return c.negotiateOnce(ctx, url, tokenOverride)
	case httpResp.StatusCode == http.StatusOK:
		var raw struct {
			Redirection
			Response
		}
		if derr := json.NewDecoder(httpResp.Body).Decode(&raw); derr != nil {
			return nil, "", "", fmt.Errorf("hubconn: invalid negotiation response body: %w", derr)
		}
		if raw.Redirection.URL != "" {
			return nil, raw.Redirection.URL, raw.Redirection.AccessToken, nil
		}
		if raw.Response.ConnectionID == "" {
			return nil, "", "", fmt.Errorf("hubconn: negotiation response missing connectionId")
		}
		resp := raw.Response
		return &resp, "", "", nil
	default:
		return nil, "", "", &StatusError{StatusCode: httpResp.StatusCode}
	}
}

// StatusError reports a non-1xx, non-200 negotiation response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hubconn: negotiate returned unexpected status %d", e.StatusCode)
}
