package app

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/hitoshi/flowstate/internal/config"
)

// NewRootCommand はflowstateのルートコマンドを生成する。
// サブコマンド省略時はserveとして動作する。
// logWriterはJSON構造化ログの出力先。
func NewRootCommand(logWriter io.Writer) *cobra.Command {
	withConfig := func(run func(cmd *cobra.Command, cfg *config.Config) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logWriter)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		}
	}

	serve := func(cmd *cobra.Command, cfg *config.Config) error { return runServe(cfg) }

	root := &cobra.Command{
		Use:           "flowstate",
		Short:         "FlowState productivity tracker",
		Long:          "FlowState records work sessions, scores them, and tracks levels, streaks and reminders.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          withConfig(serve),
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  withConfig(serve),
	}

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the reminder sweeper and cleanup jobs",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config) error {
			return runWorker(cfg)
		}),
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Args:  cobra.NoArgs,
		// サブコマンド省略時は up と同じ
		RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config) error {
			return runMigrateUp(cfg)
		}),
	}
	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config) error {
				return runMigrateUp(cfg)
			}),
		},
		newMigrateDownCommand(withConfig),
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config) error {
				return runMigrateVersion(cfg, cmd.OutOrStdout())
			}),
		},
	)

	healthcheckCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the local /health endpoint (for container health checks)",
		Args:  cobra.NoArgs,
		// 軽量サブコマンドのため、設定の読み込みをスキップする
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			if url == "" {
				url = "http://localhost:" + healthcheckPort()
			}
			return runHealthcheck(url)
		},
	}
	healthcheckCmd.Flags().String("url", "", "base URL of the API server (default http://localhost:$SERVER_PORT)")

	root.AddCommand(serveCmd, workerCmd, migrateCmd, healthcheckCmd)
	return root
}

func newMigrateDownCommand(withConfig func(func(*cobra.Command, *config.Config) error) func(*cobra.Command, []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigrateDown(cfg, steps)
		}),
	}
	cmd.Flags().Int("steps", 1, "number of migrations to roll back")
	return cmd
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}
