package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gongahkia/batchqueue/internal/observability"
)

// loggingInterceptor logs every unary RPC request.
func loggingInterceptor(logger *observability.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		statusCode := codes.OK
		if err != nil {
			statusCode = status.Code(err)
		}

		logger.WithFields(map[string]interface{}{
			"method":   info.FullMethod,
			"duration": duration.Milliseconds(),
			"status":   statusCode.String(),
		}).Infof("gRPC %s %dms", info.FullMethod, duration.Milliseconds())

		return resp, err
	}
}

// recoveryInterceptor turns a panic in a unary handler into an
// Internal status instead of crashing the server.
func recoveryInterceptor(logger *observability.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"method": info.FullMethod,
					"panic":  r,
				}).Error("panic recovered in gRPC handler")
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// metricsInterceptor records unary RPC latency and status on metrics.
func metricsInterceptor(metrics *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		statusCode := codes.OK
		if err != nil {
			statusCode = status.Code(err)
		}

		if metrics != nil {
			metrics.RecordHTTPRequest("GRPC", info.FullMethod, statusCode.String(), duration)
		}

		return resp, err
	}
}
