package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"
)

const maxBodySize = 8 << 20

// token returns the current bearer token, or "" without a source.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	return tok, nil
}

// send performs one round trip with the given bearer token.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, token string) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode, Path: path}
	case resp.StatusCode >= 400:
		return nil, &StatusError{StatusCode: resp.StatusCode, Path: path, Body: body}
	}
	return body, nil
}

// do performs an authorized request. After a 401 the token is fetched again
// and, if it changed, the request is repeated once with it.
func (c *Client) do(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.send(ctx, method, path, query, tok)
	if c.tokens == nil || !errors.Is(err, ErrUnauthorized) {
		return body, err
	}

	fresh, terr := c.token(ctx)
	if terr != nil {
		return nil, fmt.Errorf("refresh after 401: %w", terr)
	}
	if fresh == tok {
		return nil, err
	}
	c.logger.Info("retrying with refreshed token", "path", path)
	return c.send(ctx, method, path, query, fresh)
}

// withRetry repeats fn while it fails with a temporary status, sleeping a
// jittered, doubling delay between attempts.
func (c *Client) withRetry(ctx context.Context, path string, fn func() ([]byte, error)) ([]byte, error) {
	delay := c.retry.Backoff
	for attempt := 0; ; attempt++ {
		body, err := fn()
		if err == nil || !temporary(err) {
			return body, err
		}
		if attempt >= c.retry.MaxRetries {
			if attempt == 0 {
				return nil, err
			}
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		wait := jitter(delay)
		c.logger.Debug("retrying venue request",
			"path", path,
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

func temporary(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Temporary()
}

// jitter spreads d over [d/2, 3d/2).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

// getJSON GETs path with retries and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.withRetry(ctx, path, func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, path, query)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
