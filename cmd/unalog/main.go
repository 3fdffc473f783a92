package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dchud/unalog2/internal/config"
	"github.com/dchud/unalog2/internal/logging"
	"github.com/dchud/unalog2/internal/search"
	"github.com/dchud/unalog2/internal/store"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "unalog",
	Short:         "Administrative commands for an unalog installation",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", os.Getenv("UNALOG_CONFIG_DIR"), "directory holding unalog.yaml")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what a command needs to talk to the database and the index.
type env struct {
	cfg    config.Config
	log    *logrus.Logger
	db     *sql.DB
	store  *store.PostgresStore
	meili  *search.Meili
	mirror *search.Mirror
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: logging.New(cfg.LogLevel, cfg.LogFormat)}
	e.db, err = store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	e.store = store.NewPostgresStore(e.db)

	var index search.Indexer
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		e.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex, e.log)
		index = e.meili
	}
	e.mirror = search.NewMirror(index, e.store, e.log, cfg.IndexBatchSize, cfg.IndexCommitEvery)
	return e, nil
}

func (e *env) Close() {
	if e.meili != nil {
		e.meili.Close()
	}
	e.db.Close()
}

// userID resolves an optional --user flag; empty means every user.
func (e *env) userID(ctx context.Context, username string) (int64, error) {
	if username == "" {
		return 0, nil
	}
	user, err := e.store.GetUserByName(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("user %s: %w", username, err)
	}
	return user.ID, nil
}
