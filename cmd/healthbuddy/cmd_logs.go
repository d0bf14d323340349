package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/config"
)

const defaultLogLines = 40

type logsOptions struct {
	lines   int
	session string
}

func parseLogsArgs(args []string) (logsOptions, error) {
	opts := logsOptions{lines: defaultLogLines}
	for i := 0; i < len(args); i++ {
		if i+1 >= len(args) {
			return opts, fmt.Errorf("%s needs a value", args[i])
		}
		switch args[i] {
		case "-n":
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				return opts, fmt.Errorf("invalid line count %q", args[i+1])
			}
			opts.lines = n
		case "--session":
			opts.session = args[i+1]
		default:
			return opts, fmt.Errorf("unknown flag %s (usage: healthbuddy logs [-n N] [--session ID])", args[i])
		}
		i++
	}
	return opts, nil
}

// cmdLogs prints the most recent daemon log records.
func cmdLogs(args []string) error {
	opts, err := parseLogsArgs(args)
	if err != nil {
		return err
	}

	dataDir, err := config.Dir()
	if err != nil {
		return err
	}

	file, err := os.Open(filepath.Join(dataDir, "logs", "healthbuddyd.log"))
	if os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	return tailLogs(file, os.Stdout, opts)
}

// tailLogs keeps the last opts.lines matching records and prints them.
func tailLogs(r io.Reader, w io.Writer, opts logsOptions) error {
	ring := make([]string, 0, opts.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if opts.session != "" && !strings.Contains(line, opts.session) {
			continue
		}
		if len(ring) == opts.lines {
			ring = ring[1:]
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}

	for _, line := range ring {
		fmt.Fprintln(w, formatLogLine(line))
	}
	return nil
}

// formatLogLine renders a JSON record as "15:04:05 LEVEL msg k=v ...".
// Lines that are not JSON are returned unchanged.
func formatLogLine(line string) string {
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return line
	}

	ts, _ := rec["time"].(string)
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		ts = t.Local().Format(time.TimeOnly)
	}
	level, _ := rec["level"].(string)
	msg, _ := rec["msg"].(string)
	delete(rec, "time")
	delete(rec, "level")
	delete(rec, "msg")
	delete(rec, "version")

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s %s", ts, level, msg)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, rec[k])
	}
	return sb.String()
}
