package logging

import "go.uber.org/zap"

// NewLogger builds the root logger for the given environment. Production
// gets JSON output; everything else gets the console encoder.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
