package ghmcp

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose issues with the ghmcp installation",
	RunE:  runDoctor,
}

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("ghmcp Doctor v%s\n", version)
	fmt.Printf("Platform: %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
	fmt.Printf("Go: %s\n\n", goruntime.Version())

	checks := []checkResult{
		checkDataDir(),
		checkConfig(),
		checkInterpreter(),
		checkHarness(),
		checkDatabase(),
		checkGitHubToken(),
		checkGatewayHealth(),
	}

	passed, failed := 0, 0
	for _, c := range checks {
		status := "✓"
		if !c.ok {
			status = "✗"
			failed++
		} else {
			passed++
		}
		fmt.Printf("  %s %s: %s\n", status, c.name, c.detail)
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

func checkDataDir() checkResult {
	dir := config.DataDir()
	info, err := os.Stat(dir)
	if err != nil {
		return checkResult{"Data directory", false, fmt.Sprintf("%s does not exist", dir)}
	}
	if !info.IsDir() {
		return checkResult{"Data directory", false, fmt.Sprintf("%s is not a directory", dir)}
	}
	return checkResult{"Data directory", true, dir}
}

func checkConfig() checkResult {
	path := config.DefaultConfigPath()
	if _, err := os.Stat(path); err != nil {
		return checkResult{"Config file", false, fmt.Sprintf("%s not found (using defaults)", path)}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return checkResult{"Config file", false, fmt.Sprintf("parse error: %s", err)}
	}
	return checkResult{"Config file", true, fmt.Sprintf("%s (pool size %d)", path, cfg.Pool.Size)}
}

func checkInterpreter() checkResult {
	cfg := config.Current()
	path, err := exec.LookPath(cfg.Runtime.Interpreter)
	if err != nil {
		return checkResult{"Interpreter", false, fmt.Sprintf("%s not found in PATH", cfg.Runtime.Interpreter)}
	}
	return checkResult{"Interpreter", true, path}
}

func checkHarness() checkResult {
	cfg := config.Current()
	path := cfg.Runtime.HarnessScript
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Runtime.InstallDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return checkResult{"Harness script", false, fmt.Sprintf("%s not found", path)}
	}
	return checkResult{"Harness script", true, path}
}

func checkDatabase() checkResult {
	cfg := config.Current()
	dsn := cfg.Store.DSN
	if dsn == "" {
		dsn = filepath.Join(config.DataDir(), "ghmcp.db")
	}
	info, err := os.Stat(dsn)
	if err != nil {
		return checkResult{"Database", false, fmt.Sprintf("%s not found (will be created on first start)", dsn)}
	}
	return checkResult{"Database", true, fmt.Sprintf("%s (%d KB)", dsn, info.Size()/1024)}
}

func checkGitHubToken() checkResult {
	cfg := config.Current()
	token := os.Getenv(cfg.GitHub.TokenEnv)
	if token == "" {
		return checkResult{"GitHub token", false, fmt.Sprintf("%s not set (unauthenticated operations only)", cfg.GitHub.TokenEnv)}
	}
	return checkResult{"GitHub token", true, fmt.Sprintf("set (%d chars)", len(token))}
}

func checkGatewayHealth() checkResult {
	cfg := config.Current()
	if !cfg.Gateway.Enabled {
		return checkResult{"Gateway", true, "disabled"}
	}
	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Gateway.Port)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return checkResult{"Gateway", false, "not running"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return checkResult{"Gateway", true, fmt.Sprintf("running at :%d", cfg.Gateway.Port)}
	}
	return checkResult{"Gateway", false, fmt.Sprintf("unhealthy (status %d)", resp.StatusCode)}
}
