package server

import (
	"StarLedger/internal/ledger"
	"StarLedger/internal/observability"
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "starledger.v1.StarRegistry"

const requestIDHeader = "x-request-id"

// GRPCServer wraps the gRPC server and the HTTP gateway.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	healthServer  *health.Server
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	gateway       http.Handler
	log           zerolog.Logger
}

// ServerDeps holds all dependencies needed by the API surfaces.
type ServerDeps struct {
	Registry      Registry
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// NewGRPCServer creates the gRPC server with the registry, health and
// reflection services registered, and the HTTP gateway in front of the same
// registry.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) (*GRPCServer, error) {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			requestIDInterceptor,
			metricsInterceptor(deps.Metrics, deps.Logger),
		),
	)

	svc := &registryService{reg: deps.Registry}
	grpcServer.RegisterService(&starRegistryServiceDesc, svc)

	// Health check
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	gateway, err := NewGateway(svc, deps.HealthChecker, deps.Metrics, deps.Logger)
	if err != nil {
		return nil, err
	}

	return &GRPCServer{
		grpcServer:    grpcServer,
		healthServer:  healthServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		gateway:       gateway,
		log:           deps.Logger,
	}, nil
}

// Server returns the underlying gRPC server.
func (s *GRPCServer) Server() *grpc.Server { return s.grpcServer }

// Handler returns the HTTP gateway handler.
func (s *GRPCServer) Handler() http.Handler { return s.gateway }

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeGRPC(ctx, lis)
}

// ServeGRPC serves gRPC on lis until ctx is cancelled.
func (s *GRPCServer) ServeGRPC(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON API (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.gateway,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ============================================================================
// Interceptors
// ============================================================================

type requestIDKey struct{}

// RequestID returns the request ID attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(requestIDHeader); len(vals) > 0 {
			id = vals[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))
	return handler(withRequestID(ctx, id), req)
}

func metricsInterceptor(metrics *observability.Metrics, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		code := status.Code(err)

		if metrics != nil {
			metrics.APIRequests.WithLabelValues("grpc", method, code.String()).Inc()
			metrics.APIDuration.WithLabelValues("grpc", method).Observe(time.Since(start).Seconds())
		}
		logger.Debug().
			Str("request_id", RequestID(ctx)).
			Str("method", method).
			Str("code", code.String()).
			Dur("elapsed", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}

// ============================================================================
// Service descriptor
// ============================================================================

var starRegistryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StarRegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetHeight", Handler: getHeightHandler},
		{MethodName: "RequestValidation", Handler: requestValidationHandler},
		{MethodName: "SubmitStar", Handler: submitStarHandler},
		{MethodName: "GetBlockByHeight", Handler: getBlockByHeightHandler},
		{MethodName: "GetBlockByHash", Handler: getBlockByHashHandler},
		{MethodName: "GetStarsByOwner", Handler: getStarsByOwnerHandler},
		{MethodName: "ValidateChain", Handler: validateChainHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "starledger/v1/registry.json",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func getHeightHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetHeightRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StarRegistryServer).GetHeight(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetHeight")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StarRegistryServer).GetHeight(ctx, req.(*GetHeightRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func requestValidationHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RequestValidationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StarRegistryServer).RequestValidation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("RequestValidation")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StarRegistryServer).RequestValidation(ctx, req.(*RequestValidationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func submitStarHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitStarRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StarRegistryServer).SubmitStar(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("SubmitStar")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StarRegistryServer).SubmitStar(ctx, req.(*SubmitStarRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBlockByHeightHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetBlockByHeightRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StarRegistryServer).GetBlockByHeight(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetBlockByHeight")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StarRegistryServer).GetBlockByHeight(ctx, req.(*GetBlockByHeightRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBlockByHashHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetBlockByHashRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StarRegistryServer).GetBlockByHash(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetBlockByHash")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StarRegistryServer).GetBlockByHash(ctx, req.(*GetBlockByHashRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStarsByOwnerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetStarsByOwnerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StarRegistryServer).GetStarsByOwner(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetStarsByOwner")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StarRegistryServer).GetStarsByOwner(ctx, req.(*GetStarsByOwnerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func validateChainHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ValidateChainRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StarRegistryServer).ValidateChain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ValidateChain")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StarRegistryServer).ValidateChain(ctx, req.(*ValidateChainRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var _ StarRegistryServer = (*registryService)(nil)
var _ Registry = (*ledger.Ledger)(nil)
