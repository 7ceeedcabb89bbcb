package logging

import "go.uber.org/zap"

// New creates a zap logger suited to the given environment. Production gets
// JSON output at info level, development gets a human readable console, and
// anything else (local, test) gets the example logger.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	default:
		return zap.NewExample(), nil
	}
}
