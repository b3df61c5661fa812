package interceptor

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/userapi/internal/logger"
)

// UnaryLoggingInterceptor logs each listed unary call with its peer, code and duration.
func UnaryLoggingInterceptor(loggedMethods []string) grpc.UnaryServerInterceptor {
	logged := make(map[string]struct{}, len(loggedMethods))
	for _, m := range loggedMethods {
		logged[m] = struct{}{}
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		if _, ok := logged[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		start := time.Now()

		resp, err = handler(ctx, req)

		st, _ := status.FromError(err)
		peerAddr := "unknown"
		if p, ok := peer.FromContext(ctx); ok {
			peerAddr = p.Addr.String()
		}

		fields := []interface{}{
			"method", info.FullMethod,
			"peer", peerAddr,
			"duration", time.Since(start),
			"code", st.Code().String(),
		}
		if st.Code() == codes.OK {
			logger.Log.Infow("gRPC request", fields...)
		} else {
			logger.Log.Infow("gRPC request", append(fields, "message", st.Message())...)
		}

		return resp, err
	}
}
