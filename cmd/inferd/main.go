// ABOUTME: Entry point for the inferd generation gateway.
// ABOUTME: Provides serve, init, health, and sessions subcommands.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/inferd/inferd/internal/config"
	"github.com/inferd/inferd/internal/engine"
	"github.com/inferd/inferd/internal/engine/openai"
	"github.com/inferd/inferd/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _        __               _
 (_)_ __  / _| ___ _ __ __| |
 | | '_ \| |_ / _ \ '__/ _' |
 | | | | |  _|  __/ | | (_| |
 |_|_| |_|_|  \___|_|  \__,_|
`

// getConfigPath returns the path to the inferd config file.
// Priority: INFERD_CONFIG env var > XDG_CONFIG_HOME/inferd/inferd.yaml > ~/.config/inferd/inferd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("INFERD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "inferd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "inferd", "inferd.yaml")
}

// getDataPath returns the path to the inferd data directory.
// Priority: XDG_DATA_HOME/inferd > ~/.local/share/inferd
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "inferd")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: inferd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve       Start the gateway server")
		fmt.Println("  init        Create a starter config file")
		fmt.Println("  health      Check gateway health")
		fmt.Println("  sessions    List active sessions")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runSessions(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Engine:  %s (%s)\n", cfg.Engine.Model, cfg.Engine.Type)
	fmt.Println()

	logger.Info("starting inferd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"model", cfg.Engine.Model,
	)

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	srv, err := server.New(cfg, eng, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// buildEngine constructs the generation backend selected by config.
func buildEngine(cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	switch cfg.Engine.Type {
	case "openai":
		return openai.New(openai.Options{
			Model:   cfg.Engine.Model,
			BaseURL: cfg.Engine.BaseURL,
			APIKey:  cfg.Engine.APIKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown engine type %q", cfg.Engine.Type)
	}
}

func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# inferd configuration
# Generated by inferd init

server:
  http_addr: "localhost:8080"

engine:
  type: "openai"
  # Any OpenAI-compatible backend: llama.cpp --server, LM Studio, vLLM, hosted API.
  base_url: "http://localhost:8081/v1"
  model: "llama-3.2-3b-instruct"
  api_key: "${INFERD_API_KEY}"

database:
  path: "%s"

generation:
  timeout: "5m"

logging:
  level: "info"
  format: "text"
`, filepath.Join(dataPath, "inferd.db"))

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Config written to %s\n", configPath)
	fmt.Println("Edit engine.base_url and engine.model, then run: inferd serve")
	return nil
}

func runHealth(ctx context.Context) error {
	body, err := gatewayGET(ctx, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	var health struct {
		Status      string `json:"status"`
		ModelLoaded bool   `json:"model_loaded"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("parsing health response: %w", err)
	}

	fmt.Printf("status: %s\n", health.Status)
	fmt.Printf("model loaded: %v\n", health.ModelLoaded)
	return nil
}

func runSessions(ctx context.Context) error {
	body, err := gatewayGET(ctx, "/v1/sessions")
	if err != nil {
		return fmt.Errorf("listing sessions failed: %w", err)
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("parsing sessions response: %w", err)
	}

	if list.Count == 0 {
		fmt.Println("no active sessions")
		return nil
	}
	for _, s := range list.Data {
		fmt.Println(s.ID)
	}
	return nil
}

// gatewayGET performs a GET against the configured gateway address.
func gatewayGET(ctx context.Context, path string) ([]byte, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
