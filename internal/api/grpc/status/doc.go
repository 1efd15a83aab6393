// Package status exposes the daemon health over gRPC.
//
// It serves the standard grpc.health.v1.Health service with one entry per
// component (sensor, gateway) plus an overall entry, and enables server
// reflection so grpcurl and grpc-health-probe work without proto files.
package status
