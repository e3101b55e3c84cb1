package logging

import (
	"context"

	"go.uber.org/zap"
)

type runCtxKey struct{}

// RunInfo correlates log lines with a checklist run.
type RunInfo struct {
	RunID     string
	Checklist string
}

// WithRun stores run correlation data in ctx.
func WithRun(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runCtxKey{}, info)
}

// RunFromContext returns the run stored by WithRun.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	if ctx == nil {
		return RunInfo{}, false
	}
	info, ok := ctx.Value(runCtxKey{}).(RunInfo)
	return info, ok
}

// ContextFields extracts correlation fields from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	info, ok := RunFromContext(ctx)
	if !ok {
		return nil
	}
	fields := make([]zap.Field, 0, 2)
	if info.RunID != "" {
		fields = append(fields, zap.String("run.id", info.RunID))
	}
	if info.Checklist != "" {
		fields = append(fields, zap.String("checklist", info.Checklist))
	}
	return fields
}
