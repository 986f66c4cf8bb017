package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/query"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <words...>",
		Short: "Prints ranked suggestions for a free-text search as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := appInstance.Resolver().Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <topic> [modifier]",
		Short: "Prints the stored rows of one batch as JSON",
		Long: `Prints the stored rows of the (topic, modifier) batch. Without a
modifier the topic's own batch is shown.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			topic := strings.ToLower(args[0])
			modifier := topic
			if len(args) == 2 {
				modifier = strings.ToLower(args[1])
			}
			items, err := appInstance.Resolver().Page(cmd.Context(), topic, modifier)
			if errors.Is(err, crawler.ErrNotFound) {
				return fmt.Errorf("no batch stored for %s/%s", topic, modifier)
			}
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), items)
		},
	}
}

func newProxiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proxies",
		Short: "Prints the proxies the configured source returns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			endpoints, err := appInstance.LoadProxies(cmd.Context())
			if err != nil {
				return err
			}
			for _, ep := range endpoints {
				fmt.Fprintln(cmd.OutOrStdout(), ep.String())
			}
			return nil
		},
	}
}

func printJSON[T query.Entry | crawler.StoredItem](w io.Writer, v []T) error {
	if v == nil {
		v = []T{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
