// Package log provides the logging abstraction used by every syncq component.
//
// Components never depend on a concrete logging library. They accept a
// [Logger] and emit structured fields built with the helpers in this package:
//
//	logger.Warn("replay failed",
//	    log.String("id", rec.ID),
//	    log.Int("retry_count", rec.RetryCount),
//	    log.Err(err),
//	)
//
// Two implementations are provided. [NoopLogger] discards everything and is
// the library default. [ZerologAdapter] writes through zerolog, either to a
// console writer, a JSON stream, or a size-rotated file (see [NewRotatingFile]).
package log
