package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/echohq/echo-agent/internal/config"
	"github.com/echohq/echo-agent/internal/llm"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check echo-agent configuration and environment health",
	Long: `Run health checks to diagnose common configuration and environment issues.

This command checks for:
- Configuration file validity
- Database connectivity
- git and gh availability
- Inference backend reachability
- Embeddings endpoint reachability

Exit codes:
  0 - All checks passed
  1 - One or more checks failed`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runDoctor())
	},
}

func runDoctor() int {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("Running echo-agent health checks...\n\n")
	failures := 0
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Printf("%s Configuration\n", cyan("→"))
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("  %s %v\n", red("✗"), err)
		return 1
	}
	fmt.Printf("  %s configuration valid (backend: %s)\n", green("✓"), cfg.LLM.Backend)

	fmt.Printf("%s Database\n", cyan("→"))
	conn, err := pgx.Connect(ctx, cfg.Database.ConnString())
	if err != nil {
		fmt.Printf("  %s cannot connect: %v\n", red("✗"), err)
		failures++
	} else {
		conn.Close(ctx)
		fmt.Printf("  %s database reachable\n", green("✓"))
	}

	fmt.Printf("%s Tooling\n", cyan("→"))
	if _, err := exec.LookPath("git"); err != nil {
		fmt.Printf("  %s git not found in PATH\n", red("✗"))
		failures++
	} else {
		fmt.Printf("  %s git available\n", green("✓"))
	}
	if _, err := exec.LookPath("gh"); err != nil {
		fmt.Printf("  %s gh not found (PR creation disabled)\n", yellow("!"))
	} else {
		fmt.Printf("  %s gh available\n", green("✓"))
	}

	fmt.Printf("%s Inference backend\n", cyan("→"))
	switch cfg.LLM.Backend {
	case llm.BackendLocal:
		if err := probe(ctx, cfg.LLM.BaseURL+"/v1/models"); err != nil {
			fmt.Printf("  %s local server unreachable at %s: %v\n", red("✗"), cfg.LLM.BaseURL, err)
			failures++
		} else {
			fmt.Printf("  %s local server reachable\n", green("✓"))
		}
	case llm.BackendAnthropic:
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			fmt.Printf("  %s ANTHROPIC_API_KEY not set\n", red("✗"))
			failures++
		} else {
			fmt.Printf("  %s ANTHROPIC_API_KEY set\n", green("✓"))
		}
	default:
		fmt.Printf("  %s no backend configured, synthesis endpoints will answer 503\n", yellow("!"))
	}

	fmt.Printf("%s Embeddings\n", cyan("→"))
	if err := probe(ctx, cfg.Embeddings.BaseURL+"/v1/models"); err != nil {
		fmt.Printf("  %s embeddings server unreachable at %s: %v\n", red("✗"), cfg.Embeddings.BaseURL, err)
		failures++
	} else {
		fmt.Printf("  %s embeddings server reachable\n", green("✓"))
	}

	fmt.Println()
	if failures > 0 {
		fmt.Printf("%s %d check(s) failed\n", red("✗"), failures)
		return 1
	}
	fmt.Printf("%s all checks passed\n", green("✓"))
	return 0
}

func probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
