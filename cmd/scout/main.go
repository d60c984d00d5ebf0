// Command scout is an autonomous web research agent driven by a local or
// hosted OpenAI-compatible model.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scout/internal/config"
	"scout/internal/llm"
	"scout/internal/logging"
	"scout/internal/research"
	"scout/internal/search"
	"scout/internal/ui"
)

var (
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		presetName string
		configPath string
		query      string
	)

	cmd := &cobra.Command{
		Use:   "scout",
		Short: "Autonomous web research agent",
		Long: `scout decomposes a research question into prioritized focus areas,
searches and scrapes the web for each, and accumulates findings into a
session document that it summarizes and answers questions about.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(presetName, configPath)
			if err != nil {
				return err
			}
			if err := logging.Initialize(".", cfg.Logging.Level); err != nil {
				return err
			}
			defer logging.Sync()

			app, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if query != "" {
				return app.runResearch(query)
			}
			return app.interactiveLoop()
		},
	}

	cmd.Flags().StringVarP(&presetName, "preset", "p", "default", "named preset under ~/.scout/presets")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "explicit config file (overrides --preset)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "run research on this query and exit")

	cmd.AddCommand(newPresetCmd())
	return cmd
}

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage configuration presets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [name]",
		Short: "Print a preset, creating it with defaults if missing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "default"
			if len(args) == 1 {
				name = args[0]
			}
			if _, created, err := config.LoadPreset(name); err != nil {
				return err
			} else if created {
				fmt.Printf("Created preset %q at %s\n\n", name, config.PresetPath(name))
			}
			data, err := os.ReadFile(config.PresetPath(name))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path [name]",
		Short: "Print the path of a preset file",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			name := "default"
			if len(args) == 1 {
				name = args[0]
			}
			fmt.Println(config.PresetPath(name))
		},
	})
	return cmd
}

func loadConfig(preset, path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, created, err := config.LoadPreset(preset)
	if err != nil {
		return nil, err
	}
	if created {
		fmt.Println(hintStyle.Render("Created preset at " + config.PresetPath(preset)))
	}
	return cfg, nil
}

// app holds the long-lived pieces shared across research sessions.
type app struct {
	cfg    *config.Config
	client *llm.OpenAIClient
	engine *search.WebEngine
	log    *zap.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Timeout:     config.Duration(cfg.LLM.Timeout, 120*time.Second),
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("model server unreachable at %s: %w", cfg.LLM.BaseURL, err)
	}

	engine := search.NewWebEngine(search.Config{
		MaxResults:      cfg.Search.MaxResults,
		SelectLimit:     cfg.Search.SelectLimit,
		ConcurrentFetch: cfg.Search.ConcurrentFetch,
		FetchTimeout:    config.Duration(cfg.Search.FetchTimeout, 30*time.Second),
		UserAgent:       cfg.Search.UserAgent,
		AllowedDomains:  cfg.Search.AllowedDomains,
		BlockedDomains:  cfg.Search.BlockedDomains,
		BrowserFallback: cfg.Search.BrowserFallback,
	}, client)

	return &app{
		cfg:    cfg,
		client: client,
		engine: engine,
		log:    logging.Get(logging.CategoryBoot),
	}, nil
}

func (a *app) Close() {
	a.engine.Close()
}

func (a *app) controllerConfig() research.Config {
	rc := a.cfg.Research
	return research.Config{
		ContextTokens:       a.cfg.LLM.ContextTokens,
		SoftSizeRatio:       rc.SoftSizeRatio,
		HardSizeRatio:       rc.HardSizeRatio,
		StartTimeout:        config.Duration(rc.StartTimeout, 10*time.Second),
		PausePoll:           config.Duration(rc.PausePoll, time.Second),
		InitialBackoff:      config.Duration(rc.InitialBackoff, time.Second),
		MaxBackoff:          config.Duration(rc.MaxBackoff, 8*time.Second),
		MaxAnalysisFailures: rc.MaxAnalysisFailures,
	}
}

// runResearch drives one full research session: background loop, command
// handling, summary, then conversation mode.
func (a *app) runResearch(query string) error {
	store := research.NewStore(a.cfg.Research.SessionDir)
	defer store.Close()

	term := ui.NewTerminal()
	ctrl := research.NewController(a.controllerConfig(), a.client, a.engine, store, term)

	a.log.Info("research session starting", zap.String("query", query))
	if err := ctrl.StartResearch(query); err != nil {
		return err
	}
	if ctrl.ResearchComplete() {
		return ctrl.StartConversationMode()
	}
	return nil
}

// runSearch is the one-off '/' search: query, select, scrape, print.
func (a *app) runSearch(query string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, err := a.engine.Search(ctx, query, search.RangeNone)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	urls, err := a.engine.SelectRelevant(ctx, results, query)
	if err != nil || len(urls) == 0 {
		for i, r := range results {
			fmt.Printf("%d. %s\n   %s\n", i+1, r.Title, r.URL)
		}
		return nil
	}

	pages, err := a.engine.Scrape(ctx, urls)
	if err != nil {
		return err
	}
	for _, u := range urls {
		text, found := pages[u]
		if !found {
			continue
		}
		fmt.Println(bannerStyle.Render("\n=== " + u + " ==="))
		fmt.Println(text)
	}
	return nil
}

// interactiveLoop is the top-level prompt: '@<topic>' starts research,
// '/<query>' runs a one-off search, 'quit' exits.
func (a *app) interactiveLoop() error {
	fmt.Println(bannerStyle.Render("scout — autonomous web research"))
	fmt.Println(hintStyle.Render("@<topic> to research, /<query> for a quick search, 'model [name]' to show or switch models, 'quit' to exit"))

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return nil
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "":
		case line == "quit" || line == "exit":
			return nil
		case line == "model" || strings.HasPrefix(line, "model "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "model"))
			if name == "" {
				fmt.Println("Current model: " + a.client.Model())
				continue
			}
			a.client.SetModel(name)
			fmt.Println("Switched model to " + name)
		case strings.HasPrefix(line, "@"):
			topic := strings.TrimSpace(strings.TrimPrefix(line, "@"))
			if topic == "" {
				fmt.Println("Usage: @<research topic>")
				continue
			}
			if err := a.runResearch(topic); err != nil {
				fmt.Println(errStyle.Render("Research failed: " + err.Error()))
			}
		case strings.HasPrefix(line, "/"):
			q := strings.TrimSpace(strings.TrimPrefix(line, "/"))
			if q == "" {
				fmt.Println("Usage: /<search query>")
				continue
			}
			if err := a.runSearch(q); err != nil {
				fmt.Println(errStyle.Render("Search failed: " + err.Error()))
			}
		default:
			fmt.Println(hintStyle.Render("Prefix with '@' to research or '/' to search. 'quit' to exit."))
		}
	}
}
