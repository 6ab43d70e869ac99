package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bhandras/devpanel/internal/config"
	"github.com/bhandras/devpanel/internal/inspect"
	"github.com/bhandras/devpanel/internal/panel"
	"github.com/bhandras/devpanel/internal/store"
	"github.com/bhandras/devpanel/pkg/logger"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Track runtimes and print the selected flow as it changes",
	Long: `Connect to the relay, track every runtime instance and print each
reconciliation of the selected flow: full restarts and data patches.
With --inspect the tracked state is also served over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := newPrinter(cmd.OutOrStdout(), output)
		if err != nil {
			return err
		}
		withFlow, _ := cmd.Flags().GetBool("with-flow")
		instance, _ := cmd.Flags().GetString("instance")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, closeFn, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		p := panel.New(m, &printRenderer{out: out, withFlow: withFlow},
			panel.WithEchoLogs(cfg.EchoLogs),
			panel.WithStoreOptions(
				store.WithMaxLogs(cfg.MaxLogs),
				store.WithAutoSelect(cfg.AutoSelect && instance == ""),
			),
		)
		p.Start()
		defer p.Close()
		logger.Infof("Watching %s via %s", cfg.ServerURL, cfg.Transport)

		if instance != "" {
			go selectWhenSeen(ctx, p, instance)
		}

		if cfg.InspectAddr == "" {
			<-ctx.Done()
			return nil
		}
		srv := inspect.New(p)
		if err := srv.ListenAndServe(ctx, cfg.InspectAddr); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("inspect", "", "serve the inspect API on this address (e.g. :8091)")
	watchCmd.Flags().Bool("echo-logs", false, "re-emit runtime log events through the devpanel logger")
	watchCmd.Flags().Bool("auto-select", false, "select the first runtime instance that appears")
	watchCmd.Flags().Int("max-logs", 0, "number of runtime log entries to keep")
	watchCmd.Flags().Bool("with-flow", false, "print whole flow documents on restart")
	watchCmd.Flags().String("instance", "", "select this instance once it appears")

	viper.BindPFlag(config.KeyInspectAddr, watchCmd.Flags().Lookup("inspect"))
	viper.BindPFlag(config.KeyEchoLogs, watchCmd.Flags().Lookup("echo-logs"))
	viper.BindPFlag(config.KeyAutoSelect, watchCmd.Flags().Lookup("auto-select"))
	viper.BindPFlag(config.KeyMaxLogs, watchCmd.Flags().Lookup("max-logs"))
}

// selectWhenSeen selects id as soon as the store knows it.
func selectWhenSeen(ctx context.Context, p *panel.Panel, id string) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, known := range p.Store().InstanceIDs() {
			if known == id {
				if err := p.SelectInstance(ctx, id); err != nil {
					logger.Warnf("select %s: %v", id, err)
				}
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
