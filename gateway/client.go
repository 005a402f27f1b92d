// Package gateway is the HTTP client for the content API.  Each resource
// family (posts, thoughts, gallery images, auth) gets one group of calls, each
// mapping to one endpoint.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"folio/apitypes"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// Client is shared by every resource group.
type Client struct {
	http    *http.Client
	baseURL *url.URL

	// tokens is consulted on every authenticated call, so a login or logout
	// elsewhere takes effect immediately.
	tokens oauth2.TokenSource
}

// New creates a new Client talking to the API rooted at baseURL.
func New(httpClient *http.Client, baseURL string, tokens oauth2.TokenSource) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("while parsing base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		http:    httpClient,
		baseURL: u,
		tokens:  tokens,
	}, nil
}

// StatusError is a non-2xx response.  It unwraps to the matching taxonomy
// error.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: bad status code %d: %q", e.Method, e.URL, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apitypes.ErrAuth
	case http.StatusNotFound:
		return apitypes.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apitypes.ErrValidation
	default:
		return apitypes.ErrNetwork
	}
}

// endpoint joins path elements onto the base URL, escaping each one.
func (c *Client) endpoint(elems ...string) string {
	escaped := make([]string, 0, len(elems))
	for _, e := range elems {
		escaped = append(escaped, url.PathEscape(e))
	}
	return c.baseURL.String() + "/" + strings.Join(escaped, "/")
}

// resolve turns a server-relative URL (as the reference server hands out for
// stored images) into an absolute one.
func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return c.baseURL.ResolveReference(u).String()
}

// call describes one round trip.
type call struct {
	resource  string
	operation string

	method string
	url    string

	// auth marks calls that must carry the bearer token.
	auth bool

	body        io.Reader
	contentType string

	// out receives the decoded JSON response, if non-nil.
	out interface{}
}

const maxErrorBody = 4 << 10

func (c *Client) do(ctx context.Context, cl *call) (err error) {
	tracer := otel.Tracer("folio/gateway")
	ctx, span := tracer.Start(ctx, cl.resource+"."+cl.operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("http.url", cl.url),
	)

	start := time.Now()
	defer func() {
		recordCall(ctx, cl.resource, cl.operation, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "")
	}()

	req, err := http.NewRequestWithContext(ctx, cl.method, cl.url, cl.body)
	if err != nil {
		return fmt.Errorf("while making request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}

	if cl.auth {
		if c.tokens == nil {
			return fmt.Errorf("%w: no credential source configured", apitypes.ErrAuth)
		}
		tok, err := c.tokens.Token()
		if err != nil {
			if errors.Is(err, apitypes.ErrAuth) {
				return fmt.Errorf("while reading credential: %w", err)
			}
			return fmt.Errorf("%w: while reading credential: %w", apitypes.ErrAuth, err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: while calling %s %s: %w", apitypes.ErrNetwork, cl.method, cl.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: cl.method,
			URL:    cl.url,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	if cl.out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("%w: bad Content-Type %q, want application/json", apitypes.ErrNetwork, resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: while reading body: %w", apitypes.ErrNetwork, err)
	}

	if err := json.Unmarshal(body, cl.out); err != nil {
		return fmt.Errorf("%w: while unmarshaling body: %w", apitypes.ErrNetwork, err)
	}

	return nil
}

// jsonBody encodes v for a structured request.
func jsonBody(v interface{}) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("while marshaling request: %w", err)
	}
	return bytes.NewReader(data), nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", apitypes.ErrValidation)
	}
	return nil
}
