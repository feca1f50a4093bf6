// Package logging provides structured logging for repoindex.
//
// The package wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout output, optionally teed into OpenTelemetry logs
//   - context field injection (trace_id, request.id, repo.name)
//   - redaction of sensitive keys and values
//   - level-aware sampling (errors are never sampled)
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRepository(ctx, "myrepo")
//	logger.Info(ctx, "indexing started", zap.String("root", root))
//
// # Testing
//
//	logger := logging.NewTestLogger()
//	svc := NewService(logger.Logger)
//	logger.AssertLogged(t, zapcore.WarnLevel, "skipping unreadable file")
package logging
