// Package coach writes the personalised welcome a member sees once
// onboarding has matched them with a trainer.
package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/llm"
	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

// Narrator generates welcome messages with an LLM provider and falls back to
// a static template when none is available.
type Narrator struct {
	provider llm.Provider
	prompter *Prompter
	logger   *slog.Logger
	timeout  time.Duration
}

var _ session.Narrator = (*Narrator)(nil)

// Option configures a Narrator.
type Option func(*Narrator)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(n *Narrator) { n.logger = l }
}

// WithTimeout bounds each generation.
func WithTimeout(d time.Duration) Option {
	return func(n *Narrator) { n.timeout = d }
}

// NewNarrator creates a narrator. A nil provider always yields the static welcome.
func NewNarrator(provider llm.Provider, opts ...Option) *Narrator {
	n := &Narrator{
		provider: provider,
		prompter: NewPrompter(),
		logger:   slog.Default(),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Narrate returns the welcome message. Provider failures are logged and
// answered with the static welcome, so the error is always nil.
func (n *Narrator) Narrate(ctx context.Context, profile onboarding.Profile, rec onboarding.Recommendation) (string, error) {
	if n.provider == nil {
		return StaticWelcome(rec), nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.provider.Generate(ctx, llm.Prompt{
		System:      n.prompter.SystemPrompt(rec.Trainer),
		User:        n.prompter.BuildPrompt(profile, rec),
		MaxTokens:   400,
		Temperature: 0.7,
	})
	if err != nil {
		n.logger.Warn("welcome generation failed, using static welcome",
			"provider", n.provider.Name(),
			"trainer", rec.Trainer,
			"error", err)
		return StaticWelcome(rec), nil
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		n.logger.Warn("provider returned an empty welcome, using static welcome", "provider", n.provider.Name())
		return StaticWelcome(rec), nil
	}

	n.logger.Debug("welcome generated",
		"provider", n.provider.Name(),
		"trainer", rec.Trainer,
		"output_tokens", resp.OutputTokens)
	return text + "\n\n" + CallToAction(rec.Trainer), nil
}

// CallToAction is the button label that closes every welcome.
func CallToAction(t onboarding.Trainer) string {
	name := t.Name()
	if name == "" {
		name = onboarding.FallbackTrainer.Name()
	}
	return "Start My Health Journey with " + name
}

// StaticWelcome renders the deterministic welcome from the recommendation alone.
func StaticWelcome(rec onboarding.Recommendation) string {
	var sb strings.Builder

	name := rec.Trainer.Name()
	if name == "" {
		name = onboarding.FallbackTrainer.Name()
	}
	title := rec.Trainer.Title()

	fmt.Fprintf(&sb, "Hi, I'm %s", name)
	if title != "" {
		fmt.Fprintf(&sb, ", %s", title)
	}
	sb.WriteString(".\n\n")

	if rec.Program.Title != "" {
		fmt.Fprintf(&sb, "Based on your answers I've set you up with %s. %s\n\n", rec.Program.Title, rec.Program.Description)
	}
	if len(rec.Program.Features) > 0 {
		sb.WriteString("Here's what we'll do together:\n")
		for _, f := range rec.Program.Features {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(CallToAction(rec.Trainer))

	return sb.String()
}
