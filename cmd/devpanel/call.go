package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/rpc"
	"github.com/bhandras/devpanel/pkg/logger"
)

var callCmd = &cobra.Command{
	Use:   "call <kind> [params-json]",
	Short: "Send one inspection request and print its result",
	Example: `  devpanel call getState
  devpanel call getDataBinding '{"playerID":"p1","binding":"foo.bar"}'
  devpanel call runExpression --player p1 --set expression='{{count}} + 1'`,
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: completeKinds,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := newPrinter(cmd.OutOrStdout(), output)
		if err != nil {
			return err
		}

		kind := wire.Kind(args[0])
		var raw string
		if len(args) > 1 {
			raw = args[1]
		}
		player, _ := cmd.Flags().GetString("player")
		sets, _ := cmd.Flags().GetStringArray("set")
		params, err := buildParams(raw, player, sets)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		m, closeFn, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		d := rpc.New(m, rpc.WithObserver(func(s rpc.Signal) {
			logger.Debugf("%s %s: %s", s.Kind, s.ID, s.Phase)
		}))
		defer d.Close()

		result, err := d.Call(ctx, kind, params)
		if err != nil {
			return err
		}
		return out.Print(result)
	},
}

func init() {
	callCmd.Flags().String("player", "", "playerID param")
	callCmd.Flags().StringArray("set", nil, "extra string param as key=value (repeatable)")
	callCmd.Flags().Duration("timeout", 15*time.Second, "how long to wait for the response")
}

// buildParams merges a JSON object with --player and --set values.
func buildParams(raw, player string, sets []string) (map[string]any, error) {
	params := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("params must be a JSON object: %w", err)
		}
		if params == nil {
			params = map[string]any{}
		}
	}
	if player != "" {
		params["playerID"] = player
	}
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q (expected key=value)", kv)
		}
		params[key] = value
	}
	return params, nil
}

func completeKinds(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var kinds []string
	for _, k := range wire.Kinds {
		kinds = append(kinds, string(k))
	}
	return kinds, cobra.ShellCompDirectiveNoFileComp
}

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List request kinds and their required params",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Kind\tRequired")
		for _, k := range wire.Kinds {
			required := rpc.RequiredParams(k)
			fmt.Fprintf(w, "%s\t%s\n", k, strings.Join(required, ", "))
		}
		w.Flush()
	},
}
