// Package api provides the venue REST API client used as the polling
// source for realtime synchronizers and as the connectivity probe target.
//
// Endpoints:
//   - GET /api/v1/venues/{venue}/orders?status=active
//   - GET /api/v1/venues/{venue}/tables
//   - GET /api/v1/venues/{venue}/status
//   - GET /health
//
// Requests carry the session token as a bearer token. 5xx and 429
// responses are retried with jittered exponential backoff. 401 and 403
// come back as *AuthError and are not backed off; a 401 is repeated once
// when the token source yields a fresh token.
package api
