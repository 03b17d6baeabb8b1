package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across WikiForge.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldWikiID    = "wiki_id"
	FieldRequestID = "request_id"
	FieldClientID  = "client_id"

	// Components
	FieldComponent = "component"
	FieldProvider  = "provider"
	FieldModel     = "model"

	// Generation
	FieldPage     = "page"
	FieldPageType = "page_type"
	FieldLanguage = "language"
	FieldAttempt  = "attempt"
	FieldProgress = "progress"
	FieldStatus   = "status"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount  = "count"
	FieldTokens = "tokens"

	// Network
	FieldAddress = "address"
	FieldPath    = "path"
	FieldMethod  = "method"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Generator struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewGenerator() *Generator {
//	    return &Generator{
//	        logger: logger.ComponentLogger("generator"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
//
// Example:
//
//	wikiLogger := logger.ChildLogger(baseLogger, logger.FieldWikiID, wiki.ID)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
