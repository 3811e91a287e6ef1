package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"

	"aitrader/internal/config"
	"aitrader/internal/decision"
	"aitrader/internal/engine"
	"aitrader/internal/exchange"
	"aitrader/internal/exchange/bybit"
	"aitrader/internal/logger"
	"aitrader/internal/monitoring"
	"aitrader/internal/notifications"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., xau_linear.json)")
		demo       = flag.Bool("demo", true, "Use demo trading environment - paper trading (default: true)")
		envFile    = flag.String("env", ".env", "Environment file path (default: .env)")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: Could not load %s (%v), using environment variables", *envFile, err)
	}

	fmt.Println("🚀 Trader starting...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *demo {
		cfg.Exchange.Demo = true
		cfg.Exchange.Testnet = false
	}
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		log.Fatal("EXCHANGE_API_KEY and EXCHANGE_API_SECRET must be set")
	}

	sessionName := cfg.Symbols[0]
	if len(cfg.Symbols) > 1 {
		sessionName = "portfolio"
	}
	sessionLog, err := logger.NewLogger(sessionName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer sessionLog.Close()

	adapter := bybit.NewAdapter(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Category:  cfg.Exchange.Category,
		Testnet:   cfg.Exchange.Testnet,
		Demo:      cfg.Exchange.Demo,
	}, cfg.Instruments)

	stream := exchange.NewWSStream(cfg.Exchange.StreamURL, sessionLog)

	aiClient := decision.NewClient(decision.ClientConfig{
		Endpoint:   cfg.Decision.Endpoint,
		Model:      cfg.Decision.Model,
		APIKeys:    config.DecisionAPIKeys(),
		TimeoutSec: cfg.Decision.TimeoutSec,
		MaxRetries: cfg.Decision.MaxRetries,
	})

	var notifier notifications.Notifier
	if cfg.Notifications.Enabled && cfg.Notifications.TelegramToken != "" {
		notifier = notifications.NewTelegramNotifier(
			cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
	}

	var health *monitoring.HealthChecker
	if cfg.Monitoring.Enabled {
		health = monitoring.NewHealthChecker()
		go func() {
			if err := monitoring.StartMetricsServer(cfg.Monitoring.PrometheusPort, health); err != nil {
				sessionLog.Error("Metrics server stopped: %v", err)
			}
		}()
	}

	eng, err := engine.New(cfg, adapter, stream, aiClient, sessionLog, health, notifier)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	printStartupInfo(cfg, adapter.Environment())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		fmt.Println("\n🛑 Shutdown signal received...")
		cancel()
		<-done
	case err := <-done:
		cancel()
		if err != nil && err != context.Canceled {
			sessionLog.Error("Engine exited: %v", err)
			log.Fatalf("Engine exited: %v", err)
		}
	}

	fmt.Println("👋 Trader stopped")
}

func printStartupInfo(cfg *config.Config, environment string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADER INITIALIZATION")
	t.SetStyle(table.StyleRounded)

	mode := "💰 LIVE TRADING"
	if cfg.Exchange.Demo {
		mode = "🧪 DEMO (paper trading)"
	} else if cfg.Exchange.Testnet {
		mode = "🔬 TESTNET"
	}

	t.AppendRows([]table.Row{
		{"📊 Symbols", strings.Join(cfg.Symbols, ", ")},
		{"🏪 Category", cfg.Exchange.Category},
		{"🔧 Environment", environment},
		{"🚨 Mode", mode},
		{"🤖 Model", cfg.Decision.Model},
		{"🛡️ Daily loss cap", fmt.Sprintf("%.1f%%", cfg.Risk.MaxDailyLossPct*100)},
		{"🛡️ Trade loss cap", fmt.Sprintf("%.1f%%", cfg.Risk.MaxSingleTradeLossPct*100)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}
