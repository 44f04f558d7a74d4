// Package embedding holds the options shared by the embedding providers in
// its subpackages.
package embedding

import (
	"context"
	"time"
)

// Provider names accepted in configuration.
const (
	ProviderGoogle  = "google"
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

type Option func(*Options)

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
	// Timeout bounds a single provider call. Zero means no extra bound.
	Timeout time.Duration
}

func WithAPIKey(key string) Option {
	return func(o *Options) {
		o.APIKey = key
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

func WithDimensions(n int) Option {
	return func(o *Options) {
		o.Dimensions = n
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

func NewOptions(opts ...Option) Options {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// CallContext derives the context for one provider call.
func (o Options) CallContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout > 0 {
		return context.WithTimeout(ctx, o.Timeout)
	}
	return context.WithCancel(ctx)
}
