// Package model defines the restaurant payloads carried by realtime events
// and returned by the venue API.
//
// Conventions:
//   - JSON field names are snake_case, matching the wire format
//   - Timestamps are time.Time, RFC 3339 on the wire
//   - IDs are opaque strings issued by the backend
package model
