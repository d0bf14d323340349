package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/archive"
	"github.com/felixgeelhaar/healthbuddy/internal/config"
	"github.com/felixgeelhaar/healthbuddy/internal/llm"
	"github.com/felixgeelhaar/healthbuddy/internal/queue"
	"github.com/felixgeelhaar/healthbuddy/internal/storage/redisstore"
)

// cmdInit initializes Health Buddy for first-time use
func cmdInit() error {
	fmt.Println("Health Buddy - First-Time Setup")
	fmt.Println("===============================")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Creating ~/.healthbuddy directory structure... ")
	dataDir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	fmt.Println()
	fmt.Println("Personalised Welcomes")
	fmt.Println("---------------------")
	fmt.Println("With Claude (Anthropic) or a local Ollama model, your trainer writes you a")
	fmt.Println("personal welcome. Without one you get the standard welcome.")
	fmt.Println()

	cfg, _ := config.LoadLocalConfig()
	if cfg != nil && cfg.LLM.Providers["claude"] != nil && cfg.LLM.Providers["claude"].APIKey != "" {
		fmt.Println("Claude API key: already configured ✓")
	} else {
		fmt.Print("Enter Claude API key (or press Enter to skip): ")
		key, _ := reader.ReadString('\n')
		key = strings.TrimSpace(key)
		if key != "" {
			if err := config.SaveSecrets(map[string]string{"claude": key}); err != nil {
				fmt.Printf("  ⚠ Failed to save: %v\n", err)
			} else {
				fmt.Println("  ✓ Saved")
			}
		}
	}

	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. healthbuddy start     # Start the daemon")
	fmt.Println("  2. healthbuddy doctor    # Verify configuration")
	fmt.Println("  3. healthbuddy onboard   # Meet your trainer")
	fmt.Println()
	fmt.Println("For MCP clients, configure 'healthbuddy mcp' as a stdio server.")

	return nil
}

// cmdDoctor checks configuration and the services it points at
func cmdDoctor() error {
	fmt.Println("Checking Health Buddy setup...")

	allGood := true
	check := func(label string, err error, ok string) {
		fmt.Printf("%-10s ", label+":")
		if err != nil {
			fmt.Printf("✗ %v\n", err)
			allGood = false
			return
		}
		fmt.Printf("✓ %s\n", ok)
	}

	dataDir, err := config.Dir()
	if err == nil {
		if _, statErr := os.Stat(dataDir); os.IsNotExist(statErr) {
			err = fmt.Errorf("not created (run 'healthbuddy init')")
		}
	}
	check("Directory", err, dataDir)

	cfg, err := config.LoadLocalConfig()
	check("Config", err, "loaded")
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Storage.Backend {
	case config.StorageRedis:
		check("Redis", checkRedis(cfg), cfg.Storage.RedisAddr)
	case config.StorageSQLite:
		check("SQLite", nil, cfg.StoragePath(dataDir))
	default:
		check("Storage", nil, filepath.Join(dataDir, "sessions"))
	}

	if cfg.Archive.Enabled() {
		check("Postgres", checkPostgres(ctx, cfg.Archive.PostgresURL), "archive reachable")
	}
	if cfg.Events.Enabled {
		check("RabbitMQ", checkRabbitMQ(cfg.Events.AMQPURL), "events reachable")
	}

	fmt.Println("\nLLM Providers:")
	for _, name := range sortedProviders(cfg) {
		provider := cfg.LLM.Providers[name]
		if !provider.Enabled {
			continue
		}
		fmt.Printf("  %s: ", name)
		switch {
		case name == "ollama":
			fmt.Println(checkOllama(ctx, provider.URL, provider.Model))
		case provider.APIKey != "":
			fmt.Printf("✓ configured (model: %s)\n", provider.Model)
		default:
			fmt.Printf("✗ no API key (run 'healthbuddy provider set-key %s')\n", name)
		}
	}

	fmt.Print("\nDaemon:    ")
	if isRunning() {
		fmt.Println("✓ running")
	} else {
		fmt.Println("✗ not running (run 'healthbuddy start')")
	}

	fmt.Println()
	if allGood {
		fmt.Println("All checks passed! ✓")
	} else {
		fmt.Println("Some checks failed. Please fix the issues above.")
	}
	return nil
}

func checkRedis(cfg *config.LocalConfig) error {
	rcfg := redisstore.DefaultConfig()
	rcfg.Addr = cfg.Storage.RedisAddr
	rcfg.Password = cfg.Storage.RedisPassword
	rcfg.DB = cfg.Storage.RedisDB
	store, err := redisstore.New(rcfg)
	if err != nil {
		return err
	}
	return store.Close()
}

func checkPostgres(ctx context.Context, url string) error {
	pool, err := archive.Connect(ctx, url)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

func checkRabbitMQ(url string) error {
	conn, err := queue.NewConnection(url)
	if err != nil {
		return err
	}
	return conn.Close()
}

func checkOllama(ctx context.Context, url, model string) string {
	ollama := llm.NewOllamaProvider(llm.OllamaConfig{BaseURL: url, Model: model, Timeout: 5 * time.Second})
	ok, err := ollama.HasModel(ctx)
	switch {
	case err != nil:
		return fmt.Sprintf("✗ not reachable (%v)", err)
	case !ok:
		return fmt.Sprintf("⚠ model %s not pulled (run 'ollama pull %s')", ollama.Model(), ollama.Model())
	default:
		return fmt.Sprintf("✓ available (model: %s)", ollama.Model())
	}
}

// cmdConfig shows current configuration
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Health Buddy Configuration")

	fmt.Println("\nDaemon:")
	fmt.Printf("  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)

	fmt.Println("\nOnboarding:")
	flowPath := cfg.Onboarding.FlowPath
	if flowPath == "" {
		flowPath = "(built-in)"
	}
	fmt.Printf("  flow: %s\n", flowPath)
	fmt.Printf("  analysis_delay: %s\n", cfg.Onboarding.AnalysisDelay())

	fmt.Println("\nStorage:")
	fmt.Printf("  backend: %s\n", cfg.Storage.Backend)
	fmt.Printf("  path: %s\n", cfg.Storage.Path)
	if cfg.Storage.Backend == config.StorageRedis {
		fmt.Printf("  redis: %s db=%d ttl=%dm\n", cfg.Storage.RedisAddr, cfg.Storage.RedisDB, cfg.Storage.SessionTTLMin)
	}

	fmt.Println("\nArchive:")
	fmt.Printf("  enabled: %t\n", cfg.Archive.Enabled())

	fmt.Println("\nEvents:")
	fmt.Printf("  enabled: %t\n", cfg.Events.Enabled)
	if cfg.Events.Enabled {
		fmt.Printf("  consume: %t workers=%d\n", cfg.Events.Consume, cfg.Events.Workers)
	}

	fmt.Println("\nLLM:")
	fmt.Printf("  default_provider: %s\n", cfg.LLM.DefaultProvider)
	for _, name := range sortedProviders(cfg) {
		provider := cfg.LLM.Providers[name]
		if !provider.Enabled {
			continue
		}
		keyStatus := "✗"
		if provider.APIKey != "" || name == "ollama" {
			keyStatus = "✓"
		}
		fmt.Printf("  %s: model=%s key=%s\n", name, provider.Model, keyStatus)
	}

	dataDir, _ := config.Dir()
	fmt.Printf("\nConfig path: %s\n", filepath.Join(dataDir, "config.yaml"))
	return nil
}

func sortedProviders(cfg *config.LocalConfig) []string {
	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cmdProvider manages LLM provider API keys
func cmdProvider(args []string) error {
	if len(args) < 1 {
		fmt.Println(`Provider management commands:

  healthbuddy provider list              List configured providers
  healthbuddy provider set-key <name>    Set API key for a provider`)
		return nil
	}

	switch args[0] {
	case "list":
		return cmdProviderList()
	case "set-key":
		if len(args) < 2 {
			return fmt.Errorf("provider name required")
		}
		return cmdProviderSetKey(args[1])
	default:
		return fmt.Errorf("unknown provider command: %s", args[0])
	}
}

func cmdProviderList() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Configured LLM Providers:")
	for _, name := range sortedProviders(cfg) {
		provider := cfg.LLM.Providers[name]
		status := "disabled"
		if provider.Enabled {
			if provider.APIKey != "" || name == "ollama" {
				status = "ready"
			} else {
				status = "needs API key"
			}
		}

		isDefault := ""
		if name == cfg.LLM.DefaultProvider {
			isDefault = " (default)"
		}

		fmt.Printf("  %s%s\n", name, isDefault)
		fmt.Printf("    status: %s\n", status)
		fmt.Printf("    model:  %s\n", provider.Model)
		if name == "ollama" && provider.URL != "" {
			fmt.Printf("    url:    %s\n", provider.URL)
		}
		fmt.Println()
	}
	return nil
}

func cmdProviderSetKey(provider string) error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, ok := cfg.LLM.Providers[provider]; !ok {
		return fmt.Errorf("unknown provider: %s (valid: %s)", provider, strings.Join(sortedProviders(cfg), ", "))
	}
	if provider == "ollama" {
		fmt.Println("Ollama doesn't require an API key.")
		return nil
	}

	fmt.Printf("Enter %s API key: ", provider)
	key, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := config.SaveSecrets(map[string]string{provider: key}); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}

	fmt.Printf("✓ API key saved for %s\n", provider)
	fmt.Println("Restart the daemon for changes to take effect.")
	return nil
}
