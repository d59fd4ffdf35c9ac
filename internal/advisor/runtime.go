package advisor

import (
	"context"
	"time"
)

// Runtime is the minimal generation surface a provider must offer.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// RuntimeConfig carries everything a provider factory may need; factories
// ignore fields that do not apply to them.
type RuntimeConfig struct {
	APIKey      string
	Host        string
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}
