// Package main implements the triagectl CLI for manual operations against
// the triaged HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the triaged HTTP server
	serverURL string
	// authToken is the bearer token sent with every stage request
	authToken string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "triagectl",
	Short: "CLI for triaged HTTP server operations",
	Long: `triagectl is a command-line interface for triggering triaged pipeline
stages and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9180", "triaged server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token for authentication")
	aggregateCmd.Flags().IntVar(&windowHours, "window", 0, "aggregation window in hours (0 uses the server default)")
	patchCmd.Flags().StringVar(&patchTaskID, "task", "", "remediation task to link the suggestion to")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(consolidateCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check triaged server health",
	RunE:  runHealth,
}

var windowHours int

// aggregateCmd triggers pattern aggregation
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate error patterns and risk scores",
	Long: `Group recent errors into patterns, score their risk, and rank the
most problematic components.

Examples:
  # Aggregate with the server's default window
  triagectl aggregate

  # Aggregate the last 24 hours
  triagectl aggregate --window 24`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return post("/api/v1/patterns/aggregate", map[string]any{"windowHours": windowHours})
	},
}

// trendsCmd triggers trend analysis
var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Analyze error trends and system health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return post("/api/v1/trends/analyze", nil)
	},
}

// diagnoseCmd triggers semantic diagnosis of one error
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <error-id>",
	Short: "Diagnose one error record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return post("/api/v1/errors/diagnose", map[string]any{"errorId": args[0]})
	},
}

var patchTaskID string

// patchCmd triggers patch generation for one error
var patchCmd = &cobra.Command{
	Use:   "patch <error-id>",
	Short: "Generate and validate a patch suggestion",
	Long: `Generate a patch suggestion for one error record. When the record has
no cached diagnosis, the diagnoser runs first as part of the same call.

Examples:
  # Generate a patch
  triagectl patch err-123

  # Link the suggestion to an existing remediation task
  triagectl patch err-123 --task task-456`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"errorId": args[0]}
		if patchTaskID != "" {
			body["taskId"] = patchTaskID
		}
		return post("/api/v1/patches/generate", body)
	},
}

// orchestrateCmd creates remediation tasks from a metrics report
var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate [report-file]",
	Short: "Create remediation tasks from a metrics report",
	Long: `Evaluate threshold rules against a metrics report and create
remediation tasks. The report is read as JSON from a file or stdin.

Examples:
  # Orchestrate from a file
  triagectl orchestrate report.json

  # Orchestrate from stdin
  triagectl trends | jq '{report: .summary}' | triagectl orchestrate -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOrchestrate,
}

// harvestCmd triggers knowledge harvesting
var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Learn from recently resolved errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return post("/api/v1/knowledge/harvest", nil)
	},
}

// consolidateCmd triggers knowledge-base consolidation
var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate learning memories into the next knowledge-base version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return post("/api/v1/knowledge/consolidate", nil)
	},
}

// runOrchestrate reads the report JSON and posts it.
func runOrchestrate(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	var body map[string]any
	if err := json.Unmarshal(content, &body); err != nil {
		return fmt.Errorf("report is not valid JSON: %w", err)
	}
	if _, ok := body["report"]; !ok {
		// Accept a bare metrics object and wrap it.
		body = map[string]any{"report": json.RawMessage(content)}
	}

	return post("/api/v1/tasks/orchestrate", body)
}

// post sends one stage request and pretty-prints the JSON response.
func post(path string, body any) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest(http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+authToken)
	}

	client := &http.Client{
		Timeout: 120 * time.Second,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
		return nil
	}
	fmt.Println(pretty.String())

	return nil
}

// HealthResponse matches internal/httpapi HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := serverURL + "/health"

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)

	return nil
}
