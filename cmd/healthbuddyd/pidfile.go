package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

var errAlreadyRunning = errors.New("healthbuddyd is already running")

// acquirePIDFile writes our PID to path unless a live process already owns
// it. A file left behind by a dead process is replaced. The returned func
// removes the file.
func acquirePIDFile(path string) (func(), error) {
	if pid, ok := readPID(path); ok && pid != os.Getpid() && processAlive(pid) {
		return nil, fmt.Errorf("%w (pid %d)", errAlreadyRunning, pid)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return func() { os.Remove(path) }, nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	return pid, err == nil && pid > 0
}

// processAlive probes pid with signal 0. Platforms without signals report
// false, so a stale file never blocks startup there.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
