// Package telemetry streams session metrics to remote dashboards over gRPC.
//
// The service is physiotrack.telemetry.v1.Telemetry with a single
// server-streaming method, StreamMetrics, that takes google.protobuf.Empty
// and yields google.protobuf.Struct snapshots. The descriptor is declared
// in Go so no generated stubs are needed; Subscribe is the matching client.
//
// A Publisher fans out every published snapshot to all connected clients.
// Slow clients lose snapshots rather than stalling the session.
package telemetry
