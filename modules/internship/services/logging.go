package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fit-portal/placement/pkg/composables"
)

func loggerFromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	return composables.UseLogger(ctx)
}

func logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	logger := loggerFromContext(ctx)
	if logger == nil {
		return
	}
	logger.WithFields(fields).Log(level, msg)
}

// logRejected records a refused operation. Refusals are routine outcomes, so
// they log at Info; anything untyped is logged as an error.
func logRejected(ctx context.Context, msg string, err error, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	if rid := composables.UseRequestID(ctx); rid != "" {
		fields["request_id"] = rid
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Status >= 500 {
		fields["error"] = err.Error()
		logWithFields(ctx, logrus.ErrorLevel, msg+".failed", fields)
		return
	}
	fields["error_code"] = svcErr.Code
	logWithFields(ctx, logrus.InfoLevel, msg+".rejected", fields)
}

func idField(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
