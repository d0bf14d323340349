package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

const analysisPoll = 500 * time.Millisecond

// cmdOnboard runs an onboarding conversation against the daemon.
func cmdOnboard(args []string) error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'healthbuddy start' first)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var resume string
	if len(args) > 0 {
		resume = args[0]
	}

	o := &onboarder{
		api:  newClient(daemonAddr()),
		in:   bufio.NewScanner(os.Stdin),
		out:  os.Stdout,
		poll: analysisPoll,
	}
	return o.run(ctx, resume)
}

type actionKind int

const (
	actionNone actionKind = iota
	actionAnswer
	actionSelect
	actionConfirm
	actionSkip
	actionText
	actionQuit
	actionAbandon
)

type action struct {
	kind  actionKind
	value string
}

// parseInput turns a line typed at a step into an operation. Numbers pick
// options, single letters are shortcuts and anything else is free text.
func parseInput(step *session.StepView, line string) action {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return action{kind: actionNone}
	case "q", "quit":
		return action{kind: actionQuit}
	case "x", "abandon":
		return action{kind: actionAbandon}
	case "s":
		return action{kind: actionSkip}
	case "d":
		return action{kind: actionConfirm}
	}

	if step != nil {
		opts := onboarding.Step{Options: step.Options}
		if opt, ok := onboarding.OptionByNumber(opts, line); ok {
			if step.Type == onboarding.StepMultipleChoice {
				return action{kind: actionSelect, value: opt}
			}
			return action{kind: actionAnswer, value: opt}
		}
	}
	return action{kind: actionText, value: line}
}

// onboarder drives one session from the terminal.
type onboarder struct {
	api  *client
	in   *bufio.Scanner
	out  io.Writer
	poll time.Duration
}

func (o *onboarder) run(ctx context.Context, resume string) error {
	var (
		view session.View
		err  error
	)
	if resume != "" {
		view, err = o.api.get(ctx, resume)
	} else {
		view, err = o.api.create(ctx)
	}
	if err != nil {
		return fmt.Errorf("start onboarding: %w", err)
	}

	for {
		switch {
		case view.Status == session.StatusCompleted:
			return o.showRecommendation(ctx, view.ID)
		case view.Status == session.StatusAbandoned:
			fmt.Fprintln(o.out, "This onboarding was stopped.")
			return nil
		case view.AwaitingAnalysis:
			if view, err = o.waitForAnalysis(ctx, view); err != nil {
				return err
			}
			continue
		}

		o.showStep(view)
		fmt.Fprint(o.out, "> ")
		if !o.in.Scan() {
			if err := o.in.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			o.pauseHint(view.ID)
			return nil
		}

		act := parseInput(view.Step, o.in.Text())
		next, err := o.apply(ctx, view.ID, act)
		var apiErr *apiError
		switch {
		case errors.As(err, &apiErr) && apiErr.rejected():
			fmt.Fprintf(o.out, "\n  ! %s\n", apiErr.reason())
			continue
		case err != nil:
			return err
		}
		if act.kind == actionQuit {
			o.pauseHint(view.ID)
			return nil
		}
		if act.kind != actionNone {
			view = next
		}
	}
}

func (o *onboarder) apply(ctx context.Context, id string, act action) (session.View, error) {
	switch act.kind {
	case actionAnswer:
		return o.api.act(ctx, id, "answer", map[string]string{"value": act.value})
	case actionSelect:
		return o.api.act(ctx, id, "select", map[string]string{"value": act.value})
	case actionConfirm:
		return o.api.act(ctx, id, "confirm", nil)
	case actionSkip:
		return o.api.act(ctx, id, "skip", nil)
	case actionText:
		return o.api.act(ctx, id, "text", map[string]string{"text": act.value})
	case actionAbandon:
		return o.api.act(ctx, id, "abandon", nil)
	}
	return session.View{}, nil
}

func (o *onboarder) waitForAnalysis(ctx context.Context, view session.View) (session.View, error) {
	if view.Step != nil {
		fmt.Fprintf(o.out, "\n%s\n", view.Step.Prompt)
	}
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	for view.AwaitingAnalysis && view.Status == session.StatusActive {
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
		fmt.Fprint(o.out, ".")

		next, err := o.api.get(ctx, view.ID)
		if err != nil {
			return view, fmt.Errorf("poll session: %w", err)
		}
		view = next
	}
	fmt.Fprintln(o.out)
	return view, nil
}

func (o *onboarder) showStep(v session.View) {
	if v.Step == nil {
		return
	}
	progress := float64(v.StepNumber-1) / float64(max(v.TotalSteps, 1))
	fmt.Fprintf(o.out, "\n%s %d/%d\n\n%s\n\n", renderProgressBar(progress, 20), v.StepNumber, v.TotalSteps, v.Step.Prompt)

	for i, opt := range v.Step.Options {
		marker := " "
		for _, sel := range v.Selection {
			if sel == opt {
				marker = "✓"
				break
			}
		}
		fmt.Fprintf(o.out, "  %s %d. %s\n", marker, i+1, opt)
	}

	var hints []string
	switch {
	case v.Step.Type == onboarding.StepMultipleChoice:
		hints = append(hints, "numbers toggle options", "d when done")
	case v.Step.Skippable:
		hints = append(hints, "s to skip")
	}
	hints = append(hints, "q to pause")
	fmt.Fprintf(o.out, "\n  (%s, or just type your answer)\n", strings.Join(hints, ", "))
}

func (o *onboarder) showRecommendation(ctx context.Context, id string) error {
	resp, err := o.api.recommendation(ctx, id)
	if err != nil {
		return fmt.Errorf("get recommendation: %w", err)
	}
	rec := resp.Recommendation

	fmt.Fprintln(o.out)
	fmt.Fprintf(o.out, "You're a %s.\n", rec.PersonaLabel)
	fmt.Fprintf(o.out, "Your trainer: %s\n\n", rec.TrainerName)

	if resp.Narrative != "" {
		fmt.Fprintf(o.out, "%s\n\n", resp.Narrative)
	}

	fmt.Fprintf(o.out, "%s\n", rec.Program.Title)
	fmt.Fprintln(o.out, strings.Repeat("-", len(rec.Program.Title)))
	fmt.Fprintf(o.out, "%s\n", rec.Program.Description)
	if rec.Program.Focus != "" {
		fmt.Fprintf(o.out, "Focus: %s\n", rec.Program.Focus)
	}
	for _, f := range rec.Program.Features {
		fmt.Fprintf(o.out, "  • %s\n", f)
	}

	if len(rec.Reasoning) > 0 {
		fmt.Fprintln(o.out, "\nWhy this match")
		for _, r := range rec.Reasoning {
			fmt.Fprintf(o.out, "  • %s\n", r)
		}
	}

	if len(rec.Scores) > 0 {
		top := max(rec.Scores[0].Score, 1)
		fmt.Fprintln(o.out, "\nTrainer fit")
		for _, s := range rec.Scores {
			fmt.Fprintf(o.out, "  %-28s %s %d\n", s.Name, renderProgressBar(float64(s.Score)/float64(top), 20), s.Score)
		}
	}

	fmt.Fprintf(o.out, "\n[ %s ]\n", resp.CallToAction)
	return nil
}

func (o *onboarder) pauseHint(id string) {
	fmt.Fprintf(o.out, "\nPaused. Resume with: healthbuddy onboard %s\n", id)
}
