// Command kernel runs one envelope through the Cell Runtime.
//
// Grounded on the retrieved teacher codebase's cmd/agsh/main.go wiring order
// (load env → build bus → build clients → run), restructured behind a cobra
// command since this binary has a single non-interactive invocation shape
// (run --envelope path.json) rather than the teacher's interactive REPL.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kernel/cellruntime/internal/bus"
	"github.com/kernel/cellruntime/internal/cell"
	"github.com/kernel/cellruntime/internal/collab"
	"github.com/kernel/cellruntime/internal/collab/inference"
	"github.com/kernel/cellruntime/internal/collab/knowledge"
	"github.com/kernel/cellruntime/internal/collab/toolhost"
	"github.com/kernel/cellruntime/internal/collab/vault"
	"github.com/kernel/cellruntime/internal/config"
	"github.com/kernel/cellruntime/internal/diagnostics"
	"github.com/kernel/cellruntime/internal/kerneltypes"
	"github.com/kernel/cellruntime/internal/tasklog"
)

// Exit codes, per the spec's CLI contract (§6).
const (
	exitSuccess         = 0
	exitPartialFailure  = 1
	exitFatalAbort      = 2
	exitInvalidEnvelope = 3
)

func main() {
	root := &cobra.Command{
		Use:   "kernel",
		Short: "runs one envelope through the hierarchical cell runtime",
	}

	var envelopePath, cfgPath, envFile, vaultPath, logDir, inferenceProvider string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "process a single envelope and print the resulting envelope to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(envelopePath, cfgPath, envFile, vaultPath, logDir, inferenceProvider)
		},
	}
	runCmd.Flags().StringVar(&envelopePath, "envelope", "", "path to the inbound envelope JSON file (required)")
	runCmd.Flags().StringVar(&cfgPath, "config", "", "path to a thresholds YAML file (optional)")
	runCmd.Flags().StringVar(&envFile, "env-file", ".env", "path to a dotenv file of collaborator credentials")
	runCmd.Flags().StringVar(&vaultPath, "vault", "", "path to a LevelDB directory for the Vault collaborator (optional)")
	runCmd.Flags().StringVar(&logDir, "log-dir", "", "directory for per-cell JSONL task logs (defaults to $HOME/.cache/kernel/logs)")
	runCmd.Flags().StringVar(&inferenceProvider, "inference", "http", "inference provider: http (plain HTTP client) or openai-sdk (go-openai client)")
	_ = runCmd.MarkFlagRequired("envelope")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatalAbort)
	}
}

func runOnce(envelopePath, cfgPath, envFile, vaultPath, logDir, inferenceProvider string) error {
	_ = godotenv.Load(envFile)

	thresholds, err := config.Load(cfgPath, envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(exitFatalAbort)
	}

	raw, err := os.ReadFile(envelopePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "envelope:", err)
		os.Exit(exitInvalidEnvelope)
	}
	var env kerneltypes.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fmt.Fprintln(os.Stderr, "envelope: invalid JSON:", err)
		os.Exit(exitInvalidEnvelope)
	}

	if logDir == "" {
		home, _ := os.UserHomeDir()
		logDir = filepath.Join(home, ".cache", "kernel", "logs")
	}

	var infClient collab.Inference
	switch inferenceProvider {
	case "openai-sdk":
		infClient = inference.NewOpenAISDKClient()
	default:
		infClient = inference.NewHTTPClient()
	}

	collaborators := cell.Collaborators{
		Inference: infClient,
		Knowledge: knowledge.New(),
		ToolHost:  toolhost.New(),
	}
	if vaultPath != "" {
		store, err := vault.Open(vaultPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "vault:", err)
			os.Exit(exitFatalAbort)
		}
		defer store.Close()
		collaborators.Vault = collab.Vault(store)
	}

	cellBus := bus.New(thresholds.MailboxCapacity, time.Duration(thresholds.DefaultToolTimeoutSeconds)*time.Second)

	rt := &cell.Runtime{
		Cfg:            thresholds,
		Bus:            cellBus,
		Collaborators:  collaborators,
		Log:            tasklog.NewRegistry(logDir),
		HealingEnabled: true,
		MaxDepth:       6,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "log-dir:", err)
		os.Exit(exitFatalAbort)
	}
	monitor := diagnostics.New(cellBus, cellBus.NewTap(), filepath.Join(logDir, "diagnostics.jsonl"), filepath.Join(logDir, "diagnostics-stats.json"))
	go monitor.Run(ctx)

	identity := kerneltypes.Identity{
		CellID: uuid.Must(uuid.NewV7()).String(),
		Level:  kerneltypes.LevelBoard,
		Role:   "root",
		Domain: firstDomainHint(env),
	}

	out := rt.Process(ctx, env, identity)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(exitFatalAbort)
	}

	os.Exit(exitCodeFor(out))
	return nil
}

func firstDomainHint(env kerneltypes.Envelope) string {
	if len(env.Context.DomainHints) > 0 {
		return env.Context.DomainHints[0]
	}
	return "general"
}

func exitCodeFor(env kerneltypes.Envelope) int {
	for _, f := range env.Stderr.Failures {
		if f.Type == kerneltypes.FailureInvalidEnvelope {
			return exitInvalidEnvelope
		}
	}
	if len(env.Stderr.Failures) > 0 {
		if env.Stdout.WorkPackage == nil {
			return exitFatalAbort
		}
		return exitPartialFailure
	}
	return exitSuccess
}
