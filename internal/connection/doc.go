// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one outbound realtime connection per client session
//   - Queues outbound envelopes while the connection is not open and
//     flushes them in order once it opens
//   - Sends the subscribe handshake with the session identity on open
//   - Reconnects with capped exponential backoff after errors and unclean
//     closes, up to a configured number of attempts
//   - Parses every inbound frame and publishes it on the event bus
package connection
