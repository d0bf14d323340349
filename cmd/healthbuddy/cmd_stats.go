package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/config"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
	"github.com/felixgeelhaar/healthbuddy/internal/storage/sqlite"
)

// cmdStats shows onboarding statistics
func cmdStats(args []string) error {
	if len(args) > 0 && args[0] == "prune" {
		return cmdStatsPrune(args[1:])
	}

	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'healthbuddy start' first)")
	}

	var resp statsResponse
	if err := newClient(daemonAddr()).do(context.Background(), http.MethodGet, "/v1/stats", nil, &resp); err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	printStats(os.Stdout, resp)
	return nil
}

type statsResponse struct {
	Funnel   session.Stats          `json:"funnel"`
	Sessions map[session.Status]int `json:"sessions"`
	Archive  struct {
		Personas map[string]int `json:"personas"`
		Trainers map[string]int `json:"trainers"`
	} `json:"archive"`
}

func printStats(w io.Writer, s statsResponse) {
	f := s.Funnel

	fmt.Fprintln(w, "Onboarding Funnel")
	fmt.Fprintln(w, "=================")
	fmt.Fprintf(w, "Started:     %d\n", f.Started)
	fmt.Fprintf(w, "Completed:   %d (%.1f%%)\n", f.Completed, f.CompletionRate*100)
	fmt.Fprintf(w, "Abandoned:   %d\n", f.Abandoned)

	if len(s.Sessions) > 0 {
		fmt.Fprintf(w, "In progress: %d\n", s.Sessions[session.StatusActive])
	}

	if len(f.Steps) > 0 && f.Started > 0 {
		fmt.Fprintln(w, "\nReached Step")
		fmt.Fprintln(w, "------------")
		for _, step := range f.Steps {
			ratio := float64(step.Sessions) / float64(f.Started)
			fmt.Fprintf(w, "%-24s %s %3.0f%% (%d)\n", step.StepID, renderProgressBar(ratio, 20), ratio*100, step.Sessions)
		}
	}

	printCounts(w, "Personas", f.Personas)
	if len(s.Archive.Personas) > 0 {
		printCounts(w, "Archived Personas", s.Archive.Personas)
	}
	if len(s.Archive.Trainers) > 0 {
		printCounts(w, "Archived Trainers", s.Archive.Trainers)
	}
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	keys := make([]string, 0, len(counts))
	total := 0
	for k, n := range counts {
		keys = append(keys, k)
		total += n
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintf(w, "\n%s\n", title)
	for range title {
		fmt.Fprint(w, "-")
	}
	fmt.Fprintln(w)
	for _, k := range keys {
		ratio := float64(counts[k]) / float64(total)
		fmt.Fprintf(w, "%-24s %s %d\n", k, renderProgressBar(ratio, 20), counts[k])
	}
}

// cmdStatsPrune deletes analytics events older than the given number of days.
func cmdStatsPrune(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("days required (usage: healthbuddy stats prune <days>)")
	}
	days, err := strconv.Atoi(args[0])
	if err != nil || days < 1 {
		return fmt.Errorf("invalid days %q", args[0])
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	db, err := sqlite.OpenAndMigrate(cfg.StoragePath(dir))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := sqlite.NewAnalyticsStore(db).Prune(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	fmt.Printf("✓ Removed %d events older than %d days\n", n, days)
	return nil
}
