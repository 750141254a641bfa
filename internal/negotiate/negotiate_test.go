package negotiate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body interface{}) *http.Response {
	data, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func clientWith(rt roundTripFunc) func() *http.Client {
	return func() *http.Client { return &http.Client{Transport: rt} }
}

func TestNegotiateSuccess(t *testing.T) {
	connectionID := uuid.NewString()
	c := &Client{HTTPClientFactory: clientWith(func(req *http.Request) (*http.Response, error) {
		assert.Contains(t, req.URL.String(), "/negotiate?negotiateVersion=1")
		return jsonResponse(http.StatusOK, Response{ConnectionID: connectionID}), nil
	})}

	result, err := c.Negotiate(context.Background(), "http://example.test/hub")
	require.NoError(t, err)
	assert.Equal(t, connectionID, result.Response.ConnectionID)
	assert.Equal(t, "http://example.test/hub", result.URL)
}

func TestNegotiateFollowsRedirection(t *testing.T) {
	calls := 0
	c := &Client{HTTPClientFactory: clientWith(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusOK, Redirection{URL: "http://other.test/hub", AccessToken: "redirect-token"}), nil
		}
		assert.Contains(t, req.URL.String(), "other.test")
		assert.Equal(t, "Bearer redirect-token", req.Header.Get("Authorization"))
		return jsonResponse(http.StatusOK, Response{ConnectionID: "final"}), nil
	})}

	result, err := c.Negotiate(context.Background(), "http://example.test/hub")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "http://other.test/hub", result.URL)
	assert.Equal(t, "redirect-token", result.AccessToken)
	assert.Equal(t, "final", result.Response.ConnectionID)
}

func TestNegotiateSkipsInformationalResponses(t *testing.T) {
	calls := 0
	c := &Client{HTTPClientFactory: clientWith(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusContinue, struct{}{}), nil
		}
		return jsonResponse(http.StatusOK, Response{ConnectionID: "abc"}), nil
	})}

	result, err := c.Negotiate(context.Background(), "http://example.test/hub")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "abc", result.Response.ConnectionID)
}

func TestNegotiateNonOKStatusReturnsStatusError(t *testing.T) {
	c := &Client{HTTPClientFactory: clientWith(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, struct{}{}), nil
	})}

	_, err := c.Negotiate(context.Background(), "http://example.test/hub")
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestNegotiateMissingConnectionIDIsAnError(t *testing.T) {
	c := &Client{HTTPClientFactory: clientWith(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, struct{}{}), nil
	})}

	_, err := c.Negotiate(context.Background(), "http://example.test/hub")
	assert.Error(t, err)
}

func TestNegotiateSendsAuthorizationHeaderFromProvider(t *testing.T) {
	c := &Client{
		AccessTokenProvider: func() (string, error) { return "provider-token", nil },
		HTTPClientFactory: clientWith(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer provider-token", req.Header.Get("Authorization"))
			return jsonResponse(http.StatusOK, Response{ConnectionID: "abc"}), nil
		}),
	}

	_, err := c.Negotiate(context.Background(), "http://example.test/hub")
	require.NoError(t, err)
}

func TestNegotiateGivesUpAfterMaxRedirects(t *testing.T) {
	c := &Client{HTTPClientFactory: clientWith(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, Redirection{URL: req.URL.String()}), nil
	})}

	_, err := c.Negotiate(context.Background(), "http://example.test/hub")
	assert.Error(t, err)
}
