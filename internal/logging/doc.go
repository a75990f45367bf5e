// Package logging provides structured logging for phyling runs.
//
// This package wraps Go's log/slog to write JSON-formatted logs with context
// propagation, so a run with hundreds of markers can be debugged after the
// fact by filtering on genome, marker or stage.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer. Search and
// per-marker workers each derive their own child logger.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/workdir", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLogger := logger.WithRun(runID)
//	runLogger.WithMarker("K00001").WithStage("align").Info("stage finished", "duration_ms", 150)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"stage finished","run_id":"...","marker":"K00001","stage":"align","duration_ms":150}
//
// # Log Rotation
//
// File output goes through lumberjack, which rotates phyling.log by size:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "DEBUG", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// # Testing
//
// Use [NopLogger] to discard all log output.
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  max_size_mb: 10
//	  max_backups: 3
package logging
