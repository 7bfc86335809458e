package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/automaton-review/internal/domain/notify"
	"github.com/bryanwahyu/automaton-review/internal/infra/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the review tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.DB.Close()
		if cfg.Database.Driver == "sqlite" {
			if err := st.Migrate(ctx); err != nil {
				return err
			}
		}

		// tidak ada subscriber websocket di mode ini
		svc, err := newService(ctx, cfg, st, notify.Discard{}, nil, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = svc.Supervisor.Shutdown(shutdownCtx)
		}()

		log.Info("mcp server on stdio")
		return mcpserver.Serve(svc, version)
	},
}

