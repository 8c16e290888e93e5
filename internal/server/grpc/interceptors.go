package grpcserver

import (
	"context"
	"path"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// serverFault codes are logged at warn; the rest are the caller's problem.
var serverFault = map[codes.Code]bool{
	codes.Internal:    true,
	codes.Unknown:     true,
	codes.Unavailable: true,
	codes.DataLoss:    true,
}

// LoggingUnary writes one access log line per call: service, method, status
// code, duration, peer and, once AuthUnary has run, the caller's user id.
// Payloads are never logged.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx, call := withCallLog(ctx)
		resp, err := next(ctx, req)
		code := status.Code(err)

		fields := append(callFields(ctx, info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
		)
		if call.known {
			fields = append(fields, zap.Stringer("user_id", call.caller.UserID), zap.String("provider", call.caller.Provider))
		}
		lvl := zapcore.InfoLevel
		if serverFault[code] {
			lvl = zapcore.WarnLevel
			fields = append(fields, zap.String("error", status.Convert(err).Message()))
		}
		log.Log(lvl, "grpc", fields...)
		return resp, err
	}
}

// RecoverUnary turns a handler panic into codes.Internal and logs the stack.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		ctx, call := withCallLog(ctx)
		defer func() {
			if r := recover(); r != nil {
				fields := append(callFields(ctx, info.FullMethod),
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
				)
				if call.known {
					fields = append(fields, zap.Stringer("user_id", call.caller.UserID))
				}
				log.Error("panic", fields...)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// callFields splits "/cinecart.v1.Profiles/Get" into service and method.
func callFields(ctx context.Context, fullMethod string) []zap.Field {
	svc, method := path.Split(fullMethod)
	fields := []zap.Field{
		zap.String("service", path.Base(svc)),
		zap.String("method", method),
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		fields = append(fields, zap.String("peer", p.Addr.String()))
	}
	return fields
}
