package grpc_server

import (
	"context"
	"errors"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/security"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName              = "courseplatform.access.v1.ContentAccess"
	verifyContentTokenMethod = "/" + ServiceName + "/VerifyContentToken"
)

// ContentAccessServer is what the content server calls before serving a lesson.
// Messages are well-known types so no generated code is needed on either side.
type ContentAccessServer interface {
	VerifyContentToken(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

type ContentTokenVerifier interface {
	VerifyContentToken(token string) (*security.ContentClaims, error)
}

type AccessServer struct {
	verifier ContentTokenVerifier
}

func NewAccessServer(v ContentTokenVerifier) *AccessServer {
	return &AccessServer{verifier: v}
}

func (s *AccessServer) VerifyContentToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	claims, err := s.verifier.VerifyContentToken(req.GetValue())
	if errors.Is(err, domain.ErrTokenExpired) {
		return nil, status.Error(codes.Unauthenticated, "token expired")
	}
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return structpb.NewStruct(map[string]any{
		"user_id":    claims.Subject,
		"lesson_id":  claims.LessonID,
		"expires_at": claims.ExpiresAt.Unix(),
	})
}

func verifyContentTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ContentAccessServer).VerifyContentToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: verifyContentTokenMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ContentAccessServer).VerifyContentToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var ContentAccessServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ContentAccessServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "VerifyContentToken", Handler: verifyContentTokenHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "courseplatform/access/v1/access.proto",
}

type ContentAccessClient struct {
	cc grpc.ClientConnInterface
}

func NewContentAccessClient(cc grpc.ClientConnInterface) *ContentAccessClient {
	return &ContentAccessClient{cc: cc}
}

func (c *ContentAccessClient) VerifyContentToken(ctx context.Context, token string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, verifyContentTokenMethod, wrapperspb.String(token), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NewServer wires the access service, health checks and reflection.
func NewServer(access ContentAccessServer, log *zap.Logger) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(log)))
	s.RegisterService(&ContentAccessServiceDesc, access)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)
	return s
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
