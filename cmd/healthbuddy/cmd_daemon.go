package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/config"
)

// cmdStart starts the daemon in the background
func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	dataDir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("setup data directory: %w", err)
	}

	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(daemonPath)
	cmd.Dir = dataDir
	cmd.Stdout = nil
	cmd.Stderr = nil

	// Detach from parent process (platform-specific)
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	if !waitFor(3*time.Second, isRunning) {
		return fmt.Errorf("daemon failed to start (check logs with 'healthbuddy logs')")
	}
	fmt.Printf("Daemon running at %s\n", daemonAddr())
	return nil
}

// cmdStop stops the daemon
func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	dataDir, err := config.Dir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(dataDir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	if !waitFor(5*time.Second, func() bool { return !isRunning() }) {
		return fmt.Errorf("daemon did not stop gracefully")
	}
	return nil
}

// waitFor polls cond every 100ms, printing a dot per miss, and reports
// whether it held before the deadline.
func waitFor(limit time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if cond() {
			fmt.Println(" ✓")
			return true
		}
		fmt.Print(".")
	}
	fmt.Println(" ✗")
	return false
}

// cmdStatus shows daemon status
func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	var status struct {
		Status        string   `json:"status"`
		Version       string   `json:"version"`
		UptimeSeconds int      `json:"uptime_seconds"`
		Storage       string   `json:"storage"`
		LLMProviders  []string `json:"llm_providers"`
		Archive       bool     `json:"archive"`
		Events        bool     `json:"events"`
		Flow          struct {
			ID      string `json:"id"`
			Version int    `json:"version"`
			Steps   int    `json:"steps"`
		} `json:"flow"`
	}

	addr := daemonAddr()
	if err := newClient(addr).do(context.Background(), "GET", "/v1/status", nil, &status); err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	providers := strings.Join(status.LLMProviders, ", ")
	if providers == "" {
		providers = "none (static welcomes)"
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Uptime:    %s\n", time.Duration(status.UptimeSeconds)*time.Second)
	fmt.Printf("Flow:      %s v%d (%d steps)\n", status.Flow.ID, status.Flow.Version, status.Flow.Steps)
	fmt.Printf("Storage:   %s\n", status.Storage)
	fmt.Printf("Providers: %s\n", providers)
	fmt.Printf("Archive:   %t\n", status.Archive)
	fmt.Printf("Events:    %t\n", status.Events)
	fmt.Printf("Address:   %s\n", addr)

	return nil
}

// isRunning checks if the daemon is running by calling the health endpoint
func isRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return newClient(daemonAddr()).healthy(ctx)
}

// findDaemonBinary locates the healthbuddyd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("healthbuddyd"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "healthbuddyd")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{
		"/usr/local/bin/healthbuddyd",
		"./healthbuddyd",
		"./cmd/healthbuddyd/healthbuddyd",
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("healthbuddyd binary not found (build with 'go build ./cmd/healthbuddyd')")
}
