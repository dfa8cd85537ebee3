// Package audit implements async event dispatching for security-relevant
// engine outcomes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay that either drops or blocks when full.
//   - [Event]: structured record with timestamp, type, user, jti, IP and metadata.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. Which events to emit is
// decided by the engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goSession or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
