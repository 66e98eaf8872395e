// Package logging provides structured logging configuration for the mocked
// provider and the gqlmock CLI.
//
// It wraps log/slog so every component logs the same way:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatText,
//	})
//
//	logger.Debug("executed operation", "operation", "GetTodos")
//
// Components accept a *slog.Logger through an option or config field and
// fall back to Nop() when none is given, so tests stay quiet by default.
package logging
