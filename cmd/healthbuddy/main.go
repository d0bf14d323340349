// Command healthbuddy is the Health Buddy command-line client.
package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "healthbuddyd.pid"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs(os.Args[2:])
	case "doctor":
		err = cmdDoctor()
	case "config":
		err = cmdConfig()
	case "provider":
		err = cmdProvider(os.Args[2:])
	case "flow":
		err = cmdFlow(os.Args[2:])
	case "onboard":
		err = cmdOnboard(os.Args[2:])
	case "stats":
		err = cmdStats(os.Args[2:])
	case "mcp":
		err = cmdMCP(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("healthbuddy %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Health Buddy - find the AI personal trainer that fits your life

Usage:
  healthbuddy <command> [arguments]

Setup Commands:
  init              Initialize Health Buddy (first-time setup)
  doctor            Check configuration and backing services
  config            Show current configuration
  provider          Manage LLM providers

Daemon Commands:
  start             Start the Health Buddy daemon
  stop              Stop the Health Buddy daemon
  status            Show daemon status
  logs [-n N] [--session ID]
                    View daemon logs

Onboarding Commands:
  onboard           Start an onboarding conversation
  onboard <id>      Resume an onboarding session
  flow              Show the onboarding flow
  flow validate     Validate a flow YAML file

Analytics Commands:
  stats             Show the onboarding funnel
  stats prune <d>   Delete analytics events older than d days

Integration Commands:
  mcp               Start MCP server on stdio
  mcp --http <addr> Start MCP server on HTTP

Other:
  help              Show this help message
  version           Show version information

Examples:
  healthbuddy start                     # Start daemon
  healthbuddy onboard                   # Meet your trainer
  healthbuddy provider set-key claude   # Personalised welcomes
  healthbuddy mcp                       # Onboard from an MCP client`)
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
