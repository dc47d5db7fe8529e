package ghmcp

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/audit"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the execution audit log",
	RunE:  runAudit,
}

var (
	auditEventType string
	auditRequestID string
	auditLimit     int
	auditSince     string
)

func init() {
	auditCmd.Flags().StringVar(&auditEventType, "type", "", "filter by event type")
	auditCmd.Flags().StringVar(&auditRequestID, "request", "", "filter by request ID")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum number of entries")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "show entries since (e.g. 2026-01-01)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg := config.Current()
	dsn := cfg.Store.DSN
	if dsn == "" {
		dsn = filepath.Join(config.DataDir(), "ghmcp.db")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	auditLog, err := audit.New(db)
	if err != nil {
		return fmt.Errorf("initializing audit log: %w", err)
	}

	filter := audit.Filter{
		EventType: auditEventType,
		RequestID: auditRequestID,
		Limit:     auditLimit,
	}

	if auditSince != "" {
		t, err := time.Parse("2006-01-02", auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use YYYY-MM-DD): %w", err)
		}
		filter.Since = t
	}

	entries, err := auditLog.Query(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("querying audit log: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries found.")
		return nil
	}

	for _, e := range entries {
		ts := e.Timestamp.Format("2006-01-02 15:04:05")
		fmt.Printf("[%s] %-12s request=%-36s op=%-18s outcome=%-20s %s\n",
			ts, e.EventType, e.RequestID, e.Operation, e.Outcome, e.Detail,
		)
	}

	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}
