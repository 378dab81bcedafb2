// Package middleware holds the gRPC interceptors of the ops server.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/taq-server/internal/logger"
)

// healthMethodPrefix marks calls frequent enough to log at debug only.
const healthMethodPrefix = "/grpc.health.v1.Health/"

// Logging logs every call with its duration and status.
type Logging struct {
	logger *logger.Logger
}

func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

// Unary is the unary server interceptor.
func (l *Logging) Unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	l.log(ctx, info.FullMethod, start, err)
	return resp, err
}

// Stream is the stream server interceptor.
func (l *Logging) Stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	l.log(ss.Context(), info.FullMethod, start, err)
	return err
}

func (l *Logging) log(ctx context.Context, method string, start time.Time, err error) {
	code := Code(err)

	level := slog.LevelInfo
	switch {
	case err != nil && code != codes.Canceled:
		level = slog.LevelWarn
	case strings.HasPrefix(method, healthMethodPrefix):
		level = slog.LevelDebug
	}

	args := []any{
		"method", method,
		"duration_ms", time.Since(start).Milliseconds(),
		"status", code.String(),
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.logger.Log(ctx, level, "gRPC: request completed", args...)
}

// Code returns the gRPC status code of err. Errors without one are Internal.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Internal
}
