package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"veritas-hq/warden/pkg/approval"
	"veritas-hq/warden/pkg/approval/archive"
	"veritas-hq/warden/pkg/audit"
	"veritas-hq/warden/pkg/audit/storage"
	"veritas-hq/warden/pkg/cli"
	"veritas-hq/warden/pkg/config"
	"veritas-hq/warden/pkg/enforcer"
	"veritas-hq/warden/pkg/executor"
	"veritas-hq/warden/pkg/killswitch"
	"veritas-hq/warden/pkg/plugin"
	policygit "veritas-hq/warden/pkg/policy/git"
	"veritas-hq/warden/pkg/policy/manager"
	"veritas-hq/warden/pkg/registry"
	"veritas-hq/warden/pkg/security/auth"
	"veritas-hq/warden/pkg/server"
	"veritas-hq/warden/pkg/telemetry/events"
	"veritas-hq/warden/pkg/telemetry/logging"
	"veritas-hq/warden/pkg/telemetry/metrics"
	"veritas-hq/warden/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the Warden gateway with the specified configuration.

The gateway loads its configuration, policies, and token set, then
serves the ingress and admin APIs until it receives SIGINT or SIGTERM.

Examples:
  # Start with default config file (config.yaml)
  warden run

  # Start with a specific config file
  warden run --config /etc/warden/config.yaml

  # Validate configuration without starting
  warden run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "listen address (overrides config)")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate configuration and exit")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("config", err.Error())
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if _, err := logging.Setup(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		RedactPII: cfg.Telemetry.Logging.RedactPII == nil || *cfg.Telemetry.Logging.RedactPII,
	}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		if cfg.Policy.Directory != "" {
			loader := manager.NewLoader(manager.LoaderConfig{})
			policies, err := loader.LoadDirectory(cfg.Policy.Directory)
			if err != nil {
				return cli.NewConfigError("policy.directory", err.Error())
			}
			fmt.Printf("✓ Policies valid (%d policies)\n", len(policies))
		}
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Warden v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx := cli.SetupSignalHandler()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		SampleRatio: cfg.Telemetry.Tracing.SampleRatio,
		Insecure:    cfg.Telemetry.Tracing.Insecure,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer tracer.Shutdown(context.Background())

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled == nil || *cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(nil)
	}

	// Audit trail, with the SQLite mirror when enabled.
	auditCfg := audit.Config{
		Secret:        cfg.Audit.Secret,
		MirrorBuffer:  cfg.Audit.Mirror.BufferSize,
		MirrorTimeout: cfg.Audit.Mirror.WriteTimeout,
	}
	var mirror *storage.SQLiteStore
	if cfg.Audit.Mirror.Enabled == nil || *cfg.Audit.Mirror.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.Mirror.Path), 0o755); err != nil {
			return fmt.Errorf("create audit mirror directory: %w", err)
		}
		mirrorCfg := storage.DefaultSQLiteConfig()
		mirrorCfg.Path = cfg.Audit.Mirror.Path
		mirror, err = storage.NewSQLiteStore(mirrorCfg)
		if err != nil {
			return fmt.Errorf("open audit mirror: %w", err)
		}
		defer mirror.Close()
		auditCfg.Mirror = mirror
	}
	trail, err := audit.New(auditCfg, nil, nil)
	if err != nil {
		return cli.NewConfigError("audit", err.Error())
	}
	defer trail.Close()
	fmt.Println("✓ Audit trail initialized")

	// Approval manager, decision archive, and timeout sweeper.
	var decisionArchive approval.Archive
	if cfg.Approval.Archive.Enabled == nil || *cfg.Approval.Archive.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Approval.Archive.Path), 0o755); err != nil {
			return fmt.Errorf("create decision archive directory: %w", err)
		}
		arch, err := archive.NewSQLiteArchive(archive.Config{Path: cfg.Approval.Archive.Path})
		if err != nil {
			return fmt.Errorf("open decision archive: %w", err)
		}
		defer arch.Close()
		decisionArchive = arch
	}
	approvals := approval.NewManager(trail, decisionArchive, nil, nil)
	if err := approvals.RegisterWorkflow(defaultWorkflow(cfg.Executor.WorkflowID)); err != nil {
		return fmt.Errorf("register default workflow: %w", err)
	}
	sweeper := approval.NewSweeper(approvals, cfg.Approval.SweepInterval)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start approval sweeper: %w", err)
	}
	defer sweeper.Stop()

	reg := registry.New(nil)
	ks := killswitch.New(nil)

	// Policy manager, with the file watcher and git syncer when enabled.
	loader := manager.NewLoader(manager.LoaderConfig{})
	policies := manager.New(cfg.Policy.Directory, loader, trail)
	if cfg.Policy.Directory != "" {
		if err := policies.Load(); err != nil {
			return cli.NewConfigError("policy.directory", err.Error())
		}
	}
	fmt.Printf("✓ Policies loaded (%d policies)\n", policies.Count())

	if cfg.Policy.Watch {
		watcher, err := manager.NewWatcher(manager.WatcherConfig{
			Path:             cfg.Policy.Directory,
			DebounceInterval: cfg.Policy.DebounceInterval,
		}, policies)
		if err != nil {
			return cli.NewConfigError("policy.watch", err.Error())
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("policy watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Policy.Git.Enabled {
		syncer, err := policygit.NewSyncer(policygit.Config{
			URL:          cfg.Policy.Git.URL,
			Branch:       cfg.Policy.Git.Branch,
			Directory:    cfg.Policy.Git.Directory,
			PollInterval: cfg.Policy.Git.PollInterval,
			Username:     cfg.Policy.Git.Username,
			Token:        cfg.Policy.Git.Token,
		}, policies.Reload)
		if err != nil {
			return cli.NewConfigError("policy.git", err.Error())
		}
		go func() {
			if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("policy git syncer stopped", "error", err)
			}
		}()
	}

	enf := enforcer.New(enforcer.Config{
		FailureThreshold: cfg.Enforcer.FailureThreshold,
		SuccessThreshold: cfg.Enforcer.SuccessThreshold,
		Timeout:          cfg.Enforcer.Timeout,
		ProbeTimeout:     cfg.Enforcer.ProbeTimeout,
		EnforceMode:      cfg.Enforcer.EnforceMode == nil || *cfg.Enforcer.EnforceMode,
	}, nil)
	if mirror != nil {
		enf.RegisterProbe("audit_mirror", true, func(ctx context.Context) error {
			_, err := mirror.Count(ctx)
			return err
		})
	}
	enf.RegisterProbe("policy_store", false, func(_ context.Context) error {
		if cfg.Policy.Directory != "" && policies.Count() == 0 {
			return fmt.Errorf("no policies loaded from %s", cfg.Policy.Directory)
		}
		return nil
	})

	plugins := plugin.NewRegistry()
	eventStore := events.New(events.Config{MaxEvents: cfg.Telemetry.Events.MaxEvents}, nil, nil)

	exec, err := executor.New(executor.Config{
		WorkflowID:   cfg.Executor.WorkflowID,
		ModelTimeout: cfg.Executor.ModelTimeout,
	}, executor.Deps{
		KillSwitch: ks,
		Registry:   reg,
		Policies:   policies,
		Trail:      trail,
		Approvals:  approvals,
		Enforcer:   enf,
		Plugins:    plugins,
		Events:     eventStore,
		Invoke:     modelInvoker(cfg.Executor.UpstreamURL),
	}, nil, nil)
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}

	var authMiddleware *auth.Middleware
	if cfg.Security.Auth.Enabled {
		entries := make([]auth.TokenEntry, 0, len(cfg.Security.Auth.Tokens))
		for _, tok := range cfg.Security.Auth.Tokens {
			entries = append(entries, auth.TokenEntry{
				Token: tok.Token,
				Actor: auth.Actor{ID: tok.ActorID, Roles: tok.Roles},
			})
		}
		authMiddleware = auth.NewMiddleware(auth.NewValidator(entries))
	}

	serverCfg := server.Config{
		ListenAddress:   cfg.Server.ListenAddress,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxHeaderBytes:  cfg.Server.MaxHeaderBytes,
		MetricsPath:     cfg.Telemetry.Metrics.Path,
	}
	if cfg.Security.TLS.Enabled {
		serverCfg.TLSCertFile = cfg.Security.TLS.CertFile
		serverCfg.TLSKeyFile = cfg.Security.TLS.KeyFile
	}

	srv := server.NewServer(serverCfg, server.Deps{
		Executor:   exec,
		KillSwitch: ks,
		Registry:   reg,
		Approvals:  approvals,
		Trail:      trail,
		Enforcer:   enf,
		Events:     eventStore,
		Policies:   policies,
		Metrics:    collector,
		Auth:       authMiddleware,
	})

	fmt.Println()
	fmt.Printf("✓ Gateway listening on %s\n", cfg.Server.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Println("✓ Gateway stopped")
	return nil
}

// defaultWorkflow is the built-in approval workflow registered under the
// configured workflow id. Operators wanting different reviewer roles or
// escalation rules replace it through the admin API.
func defaultWorkflow(id string) approval.Workflow {
	return approval.Workflow{
		ID:                id,
		ApproverRoles:     []string{"team-lead", "admin"},
		RequiredApprovals: 1,
		TimeoutSeconds:    3600,
		TimeoutAction:     approval.TimeoutReject,
		RequireRationale:  true,
	}
}

// modelInvoker returns the injected model call. With an upstream URL the
// invoker POSTs the governed request as JSON; without one it echoes the
// prompt, which is only useful for development.
func modelInvoker(upstreamURL string) executor.InvokeFunc {
	if upstreamURL == "" {
		slog.Warn("no upstream_url configured, using echo responder")
		return func(_ context.Context, agent *registry.Agent, prompt string, _ map[string]string) (string, error) {
			return fmt.Sprintf("echo[%s]: %s", agent.ID, prompt), nil
		}
	}

	client := &http.Client{}
	return func(ctx context.Context, agent *registry.Agent, prompt string, metadata map[string]string) (string, error) {
		payload, err := json.Marshal(map[string]interface{}{
			"agent_id": agent.ID,
			"model":    agent.Model,
			"prompt":   prompt,
			"metadata": metadata,
		})
		if err != nil {
			return "", fmt.Errorf("encode upstream request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("build upstream request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("upstream call: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return "", fmt.Errorf("read upstream response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("upstream returned %d", resp.StatusCode)
		}

		var envelope struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Response != "" {
			return envelope.Response, nil
		}
		return string(body), nil
	}
}
