package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calehh/dao-keeper/app"
	"github.com/spf13/cobra"
)

var scanInterval time.Duration

var clCmd = &cobra.Command{
	Use:   "daokeeper",
	Short: "daokeeper executes approved DAO proposals and relays gasless votes",
	Long: `Serves GET /daemon to scan and execute approved proposals and
POST /relay to submit signed MinimalForwarder requests.`,
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args)
	},
}

func init() {
	homeFlag(clCmd)
	clCmd.Flags().DurationVar(&scanInterval, "scan-interval", 0, "run a scan on this interval (overrides daemon.scan_interval, 0 keeps the config value)")
}

func run(cmd *cobra.Command, args []string) {
	cfg, logger, err := loadConfig(os.Stdout)
	if err != nil {
		log.Fatalf("Reading config: %v", err)
	}
	if scanInterval > 0 {
		cfg.Daemon.ScanInterval = scanInterval
	}

	keeper, err := app.NewKeeperApp(cfg, logger)
	if err != nil {
		log.Fatalf("new app err:%v", err)
	}
	go func() {
		if err := keeper.Start(); err != nil {
			log.Fatalf("start http service err %s", err.Error())
		}
	}()

	defer func() {
		log.Println("shut down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			keeper.Stop(ctx)
		}()
		select {
		case <-ctx.Done():
			os.Exit(1)
		case <-done:
			return
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
