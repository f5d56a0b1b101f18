package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/pulsewatch/internal/config"
)

var (
	doctorConfigPath string
	doctorEndpoint   string
)

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorConfigPath, "config", "", "Path to YAML configuration file")
	doctorCmd.Flags().StringVar(&doctorEndpoint, "endpoint", "", "Base URL for the reporting backend")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and backend reachability",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Configuration.
	cfg, err := config.Load(doctorConfigPath)
	if err != nil {
		checks = append(checks, checkResult{
			label:  "configuration",
			ok:     false,
			detail: err.Error(),
			fix:    "fix the YAML or remove --config to use defaults",
		})
		printChecks(checks)
		return fmt.Errorf("doctor found issues")
	}
	source := "built-in defaults"
	if doctorConfigPath != "" {
		source = doctorConfigPath
	}
	checks = append(checks, checkResult{
		label:  "configuration",
		ok:     true,
		detail: source,
	})

	// 2. Reporting endpoint reachability.
	if doctorEndpoint != "" {
		checks = append(checks, probeEndpoint(doctorEndpoint, cfg.Endpoints.Errors))
	} else {
		checks = append(checks, checkResult{
			label:  "backend",
			ok:     false,
			detail: "no endpoint configured",
			fix:    "pulsewatch doctor --endpoint <url>",
		})
	}

	// 3. Webhook destinations.
	if n := len(cfg.Alerts.Webhooks); n > 0 {
		checks = append(checks, checkResult{
			label:  "alert webhooks",
			ok:     true,
			detail: fmt.Sprintf("%d configured", n),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "alert webhooks",
			ok:     true,
			detail: "none (alerts stay in-process)",
		})
	}

	// 4. Memory budget.
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	checks = append(checks, checkResult{
		label: "memory",
		ok:    true,
		detail: fmt.Sprintf("heap %s of %s, alarm at %.0f%%",
			humanize.Bytes(ms.HeapAlloc), humanize.Bytes(ms.Sys), cfg.Observers.MemoryPercent),
	})

	// 5. Sampling and privacy flags.
	flags := []string{fmt.Sprintf("sample_rate=%.2f", cfg.SampleRate)}
	if cfg.Privacy.Anonymize {
		flags = append(flags, "anonymize")
	}
	if cfg.Privacy.RespectDoNotTrack {
		flags = append(flags, "respect_dnt")
	}
	checks = append(checks, checkResult{
		label:  "privacy",
		ok:     true,
		detail: strings.Join(flags, ", "),
	})

	if !printChecks(checks) {
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

func probeEndpoint(base, errorsPath string) checkResult {
	target := strings.TrimRight(base, "/") + errorsPath
	if _, err := url.Parse(target); err != nil {
		return checkResult{label: "backend", ok: false, detail: fmt.Sprintf("invalid URL: %v", err)}
	}

	client := &http.Client{Timeout: 5 * time.Second}
	start := time.Now()
	resp, err := client.Head(target)
	if err != nil {
		return checkResult{
			label:  "backend",
			ok:     false,
			detail: fmt.Sprintf("unreachable: %v", err),
			fix:    "check the endpoint URL and network access",
		}
	}
	resp.Body.Close()

	return checkResult{
		label:  "backend",
		ok:     true,
		detail: fmt.Sprintf("%s (HTTP %d, %s)", target, resp.StatusCode, time.Since(start).Round(time.Millisecond)),
	}
}

func printChecks(checks []checkResult) bool {
	allOK := true
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
			allOK = false
		}
		line := fmt.Sprintf("%s %-16s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	fmt.Println()
	if allOK {
		fmt.Println("All checks passed.")
	} else {
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
	}
	return allOK
}
