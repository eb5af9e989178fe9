package main

import (
	"context"
	"fmt"
	"net/netip"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version is the current server version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

func main() {
	var configPath string
	var portOverride int

	logger := logrus.New()

	rootCmd := &cobra.Command{
		Use:   "lobbyserver",
		Short: "UDP lobby coordination server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if portOverride != 0 {
				cfg.Port = portOverride
			}
			return runServe(cfg, logger)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.Flags().IntVar(&portOverride, "port", 0, "override the configured UDP listen port")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective, defaulted configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}

	var testClientAddr, testClientLobby, testClientPassword, testClientUsername string
	testClientCmd := &cobra.Command{
		Use:   "testclient",
		Short: "run a synthetic UDP client against a running server (manual smoke test)",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := netip.ParseAddrPort(testClientAddr)
			if err != nil {
				return fmt.Errorf("parse --addr: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			RunTestClient(ctx, addr, testClientLobby, testClientPassword, testClientUsername, logger)
			return nil
		},
	}
	testClientCmd.Flags().StringVar(&testClientAddr, "addr", "127.0.0.1:8756", "server address to connect to")
	testClientCmd.Flags().StringVar(&testClientLobby, "lobby", "smoketest", "lobby name to join")
	testClientCmd.Flags().StringVar(&testClientPassword, "password", "", "lobby password")
	testClientCmd.Flags().StringVar(&testClientUsername, "username", "tester", "username to connect as")

	rootCmd.AddCommand(versionCmd, configCmd, testClientCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
}

func runServe(cfg *Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
