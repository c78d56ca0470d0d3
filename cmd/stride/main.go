package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stride-agent/stride/internal/agent"
	"github.com/stride-agent/stride/internal/gateway"
	"github.com/stride-agent/stride/internal/governance"
	"github.com/stride-agent/stride/internal/observability"
	"github.com/stride-agent/stride/internal/orchestrator"
	"github.com/stride-agent/stride/internal/store"
	"github.com/stride-agent/stride/internal/tools"
	"github.com/stride-agent/stride/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	objective := flag.String("objective", "", "solve a single objective and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	solver, runStore, err := buildSolver(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer runStore.Close()

	if *objective != "" {
		runOnce(solver, *objective)
		return
	}

	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := gateway.NewMux()
	var gateways []gateway.Messenger

	if tgCfg, ok := cfg.GetGateway("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, solver)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, tg)
		mux.Route("tg:", tg)
	}
	if dcCfg, ok := cfg.GetGateway("discord"); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, solver)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, dc)
		mux.Route("dc:", dc)
	}
	if len(gateways) == 0 {
		log.Fatal("No gateway is enabled; enable one in the config or pass -objective")
	}

	scheduler := agent.NewScheduler(solver, runStore, mux)
	go scheduler.Start(ctx)

	// Live dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()

	for _, g := range gateways {
		go func(g gateway.Messenger) {
			if err := g.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop()
			}
		}(g)
	}

	<-ctx.Done()

	for _, g := range gateways {
		_ = g.Stop()
	}
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("Shut down cleanly. Goodbye.")
}

func buildSolver(cfg *config.Config) (*agent.Solver, *store.RunStore, error) {
	runStore, err := store.NewRunStore(cfg.Memory.Path)
	if err != nil {
		return nil, nil, err
	}

	registry := tools.NewRegistry()

	searchTool, err := tools.NewSearchTool()
	if err != nil {
		log.Printf("Warning: failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}
	registry.Register(tools.NewFilesystemTool(cfg.App.Workspace))
	registry.Register(tools.NewScraperTool())
	registry.Register(tools.NewBrowserTool())
	registry.Register(tools.NewShellTool())
	registry.Register(tools.NewScheduleTool(runStore))

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: block dangerous destructive commands
	_ = gov.DenyArguments(`rm\s+-rf`)
	_ = gov.DenyArguments(`mkfs`)
	_ = gov.DenyArguments(`shutdown`)
	_ = gov.DenyArguments(`reboot`)

	promptsDir := cfg.App.Prompts
	if promptsDir == "" {
		promptsDir = "./prompts"
	}
	prompts := agent.NewPromptManager(promptsDir)
	logger := observability.NewLogger()

	model, err := buildModel(cfg)
	if err != nil {
		return nil, nil, err
	}

	planner := agent.NewPlanner(model, registry, prompts, logger)
	executor := agent.NewExecutor(model, registry, prompts, gov, logger)
	replanner := agent.NewReplanner(model, prompts, logger)

	solver := agent.NewSolver(planner, executor, replanner, runStore, logger, orchestrator.Config{
		MaxIterations: cfg.Orchestrator.MaxIterations,
		CallTimeout:   cfg.Orchestrator.CallTimeout(),
	})
	return solver, runStore, nil
}

func buildModel(cfg *config.Config) (llms.Model, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}

	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s is not supported", pName)
	}
}

func runOnce(solver *agent.Solver, objective string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	answer, err := solver.Solve(ctx, "cli", objective)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	fmt.Println(answer)
}
