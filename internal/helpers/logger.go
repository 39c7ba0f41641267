package helpers

import (
	"log/slog"
	"os"
)

// SetupLogger creates a properly configured logger for engine and service implementations.
// If the provided handler is nil, it creates a default handler with appropriate grouping.
//
// Parameters:
//   - handler: The slog.Handler to use, or nil for defaults
//   - groupName: The name of the component group (e.g., "transform", "lua")
//   - subGroupName: Optional additional group name within the component
//
// Returns:
//   - The configured handler
//   - A logger created from the handler
func SetupLogger(handler slog.Handler, groupName string, subGroupName string) (slog.Handler, *slog.Logger) {
	if handler == nil {
		defaultHandler := slog.NewTextHandler(os.Stdout, nil)
		handler = defaultHandler.WithGroup(groupName)
		defaultLogger := slog.New(handler)
		defaultLogger.Warn("Handler is nil, using the default logger configuration.")
	}

	var logger *slog.Logger
	if subGroupName != "" {
		logger = slog.New(handler.WithGroup(subGroupName))
	} else {
		logger = slog.New(handler)
	}

	return handler, logger
}
