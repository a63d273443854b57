package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/callwatch/internal/audit"
	"github.com/ppiankov/callwatch/internal/collector"
	"github.com/ppiankov/callwatch/internal/policy"
	"github.com/ppiankov/callwatch/internal/store"
)

var (
	serveAddr   string
	serveDB     string
	serveRules  string
	serveAPIKey string
	serveAudit  string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default collector.addr)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "SQLite database path (default collector.db)")
	serveCmd.Flags().StringVar(&serveRules, "rules", "", "Policy rules YAML (default collector.rules)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "Accept only this API key (default: any cw_ key)")
	serveCmd.Flags().StringVar(&serveAudit, "audit-log", "", "Append policy decisions to this hash-chained JSONL file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a development collector",
	Long: "Runs the callwatch collector: agent registration, event batch ingestion\n" +
		"into SQLite and policy evaluation from a rules file.\n" +
		"The rules file is reloaded when it changes.",
	RunE: runServe,
}

type serveSettings struct {
	addr, db, rules, apiKey, auditLog string
}

// serveConfig merges flags over the loaded config.
func serveConfig() serveSettings {
	c := serveSettings{
		addr:     cfg.Collector.Addr,
		db:       cfg.Collector.DB,
		rules:    cfg.Collector.Rules,
		apiKey:   cfg.Collector.APIKey,
		auditLog: cfg.Collector.AuditLog,
	}
	if serveAddr != "" {
		c.addr = serveAddr
	}
	if serveDB != "" {
		c.db = serveDB
	}
	if serveRules != "" {
		c.rules = serveRules
	}
	if serveAPIKey != "" {
		c.apiKey = serveAPIKey
	}
	if serveAudit != "" {
		c.auditLog = serveAudit
	}
	return c
}

func runServe(cmd *cobra.Command, args []string) error {
	sc := serveConfig()
	logger := newLogger()
	defer logger.Sync()

	st, err := store.Open(sc.db)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	engine, err := policy.NewEngine(sc.rules, logger)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sc.rules != "" {
		reloader, err := policy.NewReloader(engine)
		if err != nil {
			logger.Warn("hot-reload disabled", zap.Error(err))
		} else {
			go reloader.Run(ctx)
		}
	}

	srvCfg := collector.Config{Addr: sc.addr, APIKey: sc.apiKey}
	if sc.auditLog != "" {
		log, err := audit.Open(sc.auditLog)
		if err != nil {
			return err
		}
		defer log.Close()
		srvCfg.AuditLog = log
	}

	srv := collector.NewServer(srvCfg, st, engine, logger)
	fmt.Fprintf(cmd.ErrOrStderr(), "callwatch collector listening on %s (db %s)\n", sc.addr, sc.db)
	return srv.Start(ctx)
}
