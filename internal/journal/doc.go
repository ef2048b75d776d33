// Package journal records inbound realtime envelopes to PostgreSQL.
//
// The connection manager's tap hands every parsed envelope to Writer.Record,
// which never blocks. Envelopes sit in a bounded ring buffer (oldest dropped
// when full) and are written in batches with pgx.Batch. Rows are append-only
// and keyed by a client-generated UUID, so replays after a failed flush do
// not duplicate.
package journal
