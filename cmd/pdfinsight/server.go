package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/marples/pdfinsight/internal/analyzer"
	"github.com/marples/pdfinsight/internal/api"
	"github.com/marples/pdfinsight/internal/composer"
	"github.com/marples/pdfinsight/internal/config"
	"github.com/marples/pdfinsight/internal/gemini"
	"github.com/marples/pdfinsight/internal/storage"
)

// maxConcurrentConns bounds simultaneous HTTP connections; the store runs on
// a single SQLite connection, so there is no point accepting more.
const maxConcurrentConns = 64

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pdfinsight server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pdfinsight server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pdfinsight system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "pdfinsight.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// loadConfigInteractive loads configuration and, when no Gemini API key is
// found anywhere, prompts for one on the terminal and persists it to the
// platform secret store.
func loadConfigInteractive() (config.Config, error) {
	cfg, err := config.Load()
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, config.ErrMissingAPIKey) {
		return config.Config{}, err
	}

	fmt.Fprint(os.Stderr, "Gemini API key not found. Enter it now (or set GEMINI_API_KEY): ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return config.Config{}, err
	}
	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		return config.Config{}, err
	}

	if storeErr := config.StoreGeminiKey(config.NewSecretStore(), key); storeErr != nil {
		printWarning("could not persist API key: %v", storeErr)
	} else {
		printSuccess("API key stored")
	}

	cfg.Gemini.APIKey = key
	return cfg, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "pdfinsight version %s\n", version)

	cfg, err := loadConfigInteractive()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	})))

	apiToken, err := config.GetAPIToken(config.NewSecretStore())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start a second instance. The health endpoint is the source of
	// truth; the PID file only names the culprit.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("pdfinsight is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("pdfinsight is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	var gen *gemini.Client
	if cfg.Gemini.BaseURL != "" {
		gen = gemini.NewClientWithBaseURL(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL)
	} else {
		gen = gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
	}

	baseBackoff, err := time.ParseDuration(cfg.Analysis.BaseBackoff)
	if err != nil {
		slog.Warn("invalid base backoff, using default 1s", "value", cfg.Analysis.BaseBackoff, "error", err)
		baseBackoff = time.Second
	}
	prompts := composer.New(cfg.Analysis.ExcerptCap)
	anl := analyzer.New(gen, prompts,
		analyzer.WithMaxAttempts(cfg.Analysis.MaxAttempts),
		analyzer.WithBaseBackoff(baseBackoff),
	)

	handler := api.NewHandler(api.Deps{
		Store:    store,
		Analyzer: anl,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, maxConcurrentConns)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "pdfinsight listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if cfg.Server.MCPEnabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    store,
			Analyzer: anl,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)", "model", gen.Model())
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrMissingAPIKey) {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("pdfinsight is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop pdfinsight (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to pdfinsight (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrMissingAPIKey) {
		printError("config error: %v", err)
		return nil
	}
	if errors.Is(err, config.ErrMissingAPIKey) {
		printWarning("Gemini API key is not configured")
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, respErr := client.Get(serverURL + "/health")
	if respErr != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.Gemini.Model)

	apiToken, tokenErr := config.GetAPIToken(config.NewSecretStore())
	if tokenErr == nil && respErr == nil && resp.StatusCode == 200 {
		docsResp, err := apiGet(client, serverURL+"/documents?limit=100", apiToken)
		if err == nil {
			var docs []json.RawMessage
			if json.NewDecoder(docsResp.Body).Decode(&docs) == nil {
				printStatus("Documents", "%s", countLabel(len(docs), 100))
			}
			docsResp.Body.Close()
		}
		analysesResp, err2 := apiGet(client, serverURL+"/analyses?limit=100", apiToken)
		if err2 == nil {
			var analyses []json.RawMessage
			if json.NewDecoder(analysesResp.Body).Decode(&analyses) == nil {
				printStatus("Analyses", "%s", countLabel(len(analyses), 100))
			}
			analysesResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
