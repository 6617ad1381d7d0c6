package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/physio.track/internal/pose/pipeline"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "physiotrack.telemetry.v1.Telemetry"

const streamMetricsMethod = "/" + ServiceName + "/StreamMetrics"

// TelemetryServer is the server API of the Telemetry service.
type TelemetryServer interface {
	StreamMetrics(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes the Telemetry service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamMetrics",
			Handler:       streamMetricsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "physiotrack/telemetry/v1/telemetry.proto",
}

func streamMetricsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TelemetryServer).StreamMetrics(in, stream)
}

// Subscription is a client-side StreamMetrics stream.
type Subscription struct {
	stream grpc.ClientStream
}

// Subscribe opens a StreamMetrics stream on cc. Cancel ctx to close it.
func Subscribe(ctx context.Context, cc grpc.ClientConnInterface) (*Subscription, error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], streamMetricsMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks for the next raw snapshot.
func (s *Subscription) Recv() (*structpb.Struct, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// RecvMetrics blocks for the next snapshot and decodes it.
func (s *Subscription) RecvMetrics() (pipeline.SessionMetrics, error) {
	msg, err := s.Recv()
	if err != nil {
		return pipeline.SessionMetrics{}, err
	}
	return DecodeMetrics(msg)
}

// EncodeMetrics converts a snapshot to its wire form using the JSON field
// names of SessionMetrics.
func EncodeMetrics(m pipeline.SessionMetrics) (*structpb.Struct, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	return structpb.NewStruct(fields)
}

// DecodeMetrics is the inverse of EncodeMetrics.
func DecodeMetrics(st *structpb.Struct) (pipeline.SessionMetrics, error) {
	var m pipeline.SessionMetrics
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return m, fmt.Errorf("decode metrics: %w", err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("decode metrics: %w", err)
	}
	return m, nil
}
