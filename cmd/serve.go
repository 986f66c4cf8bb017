package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/keyword-crawler/internal/api"
	"github.com/JakeFAU/keyword-crawler/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the query API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			handler := api.NewServer(appInstance.Resolver(), cfg, appInstance.Logger()).Handler()
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			return server.Run(cmd.Context(), addr, handler, appInstance.Logger().Named("server"))
		},
	}
}
