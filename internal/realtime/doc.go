// Package realtime implements the Real-Time Data Synchronizer component.
//
// The Synchronizer:
//   - Fetches a resource immediately when configured
//   - Refetches on a fixed polling interval
//   - Refetches whenever one of its trigger event types is published
//   - Exposes the latest data, loading flag, error and update time
//
// Results are applied in completion order. Results of fetches that belong
// to a torn-down or replaced configuration are discarded.
package realtime
