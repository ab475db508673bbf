package inference

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"strings"
	"syscall"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const analyzeMethod = "/inference.v1.InferenceService/Analyze"

// GRPCAnalyzer calls the inference service over gRPC. The upstream contract is
// a loose struct-based message, so the client invokes the method generically
// instead of depending on generated stubs.
type GRPCAnalyzer struct {
	name     string
	endpoint string
	conn     *grpc.ClientConn
}

// NewGRPCAnalyzer dials the upstream. Endpoints with an https scheme or :443
// suffix use TLS; everything else dials insecure.
func NewGRPCAnalyzer(name, endpoint string) (*GRPCAnalyzer, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial grpc endpoint %s: %w", target, err)
	}

	return &GRPCAnalyzer{name: name, endpoint: endpoint, conn: conn}, nil
}

// Name returns the provider name used in logs.
func (a *GRPCAnalyzer) Name() string { return a.name }

// Close tears down the connection.
func (a *GRPCAnalyzer) Close() error { return a.conn.Close() }

// Analyze invokes the upstream method and maps gRPC status codes onto the
// same failure-signal vocabulary the HTTP client produces.
func (a *GRPCAnalyzer) Analyze(ctx context.Context, requestID string, payload []byte) (*Result, error) {
	req, err := structpb.NewStruct(map[string]any{
		"request_id": requestID,
		"payload":    base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		return nil, &UpstreamError{Message: "build request", Err: err}
	}

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, analyzeMethod, req, resp); err != nil {
		return nil, a.toUpstreamError(err)
	}

	result := &Result{RequestID: requestID}
	fields := resp.GetFields()
	if lv, ok := fields["labels"]; ok {
		for _, v := range lv.GetListValue().GetValues() {
			result.Labels = append(result.Labels, v.GetStringValue())
		}
	}
	if sv, ok := fields["scores"]; ok {
		result.Scores = sv.GetStructValue().AsMap()
	}
	return result, nil
}

// toUpstreamError translates a gRPC status into the HTTP-flavored signal the
// classifier understands. ErrorInfo details, when present, carry the upstream
// error code.
func (a *GRPCAnalyzer) toUpstreamError(err error) *UpstreamError {
	st, ok := status.FromError(err)
	if !ok {
		return &UpstreamError{Message: "transport", Err: err}
	}

	ue := &UpstreamError{Message: st.Message(), Err: err}
	switch st.Code() {
	case codes.ResourceExhausted:
		ue.StatusCode = 429
	case codes.Unavailable:
		// Same actionable signal as a refused TCP connection.
		ue.Err = syscall.ECONNREFUSED
	case codes.DeadlineExceeded:
		ue.Err = context.DeadlineExceeded
	case codes.InvalidArgument:
		ue.StatusCode = 400
	case codes.Internal, codes.DataLoss:
		ue.StatusCode = 500
	case codes.Unimplemented:
		ue.StatusCode = 501
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			ue.ErrorCode = info.GetReason()
		}
	}
	return ue
}
