package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var ErrAllProvidersFailed = errors.New("all providers failed")

// Fallback asks each provider in turn and returns the first completion.
type Fallback struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallback chains providers. A nil logger uses slog.Default.
func NewFallback(logger *slog.Logger, providers ...Provider) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{providers: providers, logger: logger}
}

func (f *Fallback) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (f *Fallback) Generate(ctx context.Context, p Prompt) (Completion, error) {
	if len(f.providers) == 0 {
		return Completion{}, ErrNoDefaultProvider
	}

	var errs []error
	for i, provider := range f.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		c, err := provider.Generate(ctx, p)
		if err == nil {
			return c, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		if i < len(f.providers)-1 {
			f.logger.Warn("provider failed, trying next",
				"provider", provider.Name(),
				"next", f.providers[i+1].Name(),
				"error", err)
		}
	}
	return Completion{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}
