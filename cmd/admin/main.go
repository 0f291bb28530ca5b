// Command admin is the operator CLI: it provisions organization accounts, imports contact
// CSVs and prints ranking statistics without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"talentCorner/internal/config"
	"talentCorner/internal/database"
)

// dbFlags 覆盖配置中的数据库连接参数（可选）。
type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslMode  string
}

func (f dbFlags) apply(cfg *config.DatabaseConfig) {
	if s := strings.TrimSpace(f.host); s != "" {
		cfg.Host = s
	}
	if f.port > 0 {
		cfg.Port = f.port
	}
	if s := strings.TrimSpace(f.name); s != "" {
		cfg.Name = s
	}
	if s := strings.TrimSpace(f.user); s != "" {
		cfg.User = s
	}
	if f.password != "" {
		cfg.Password = f.password
	}
	if s := strings.TrimSpace(f.sslMode); s != "" {
		cfg.SSLMode = s
	}
}

type app struct {
	db     dbFlags
	cfg    *config.Config
	logger *slog.Logger
}

// open loads the configuration and connects to the database; migrate runs AutoMigrate first.
func (a *app) open(migrate bool) (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a.db.apply(&cfg.Database)
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if migrate {
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Talent Corner operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.db.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	pf.IntVar(&a.db.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	pf.StringVar(&a.db.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	pf.StringVar(&a.db.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	pf.StringVar(&a.db.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&a.db.sslMode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")

	root.AddCommand(
		newMigrateCmd(a),
		newCreateOrgCmd(a),
		newImportCmd(a),
		newStatsCmd(a),
	)
	return root
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.open(true); err != nil {
				return err
			}
			color.Green("database migrated")
			return nil
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}
