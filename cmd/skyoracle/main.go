package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FeelPulse/skyoracle/internal/config"
	"github.com/FeelPulse/skyoracle/internal/gateway"
	"github.com/FeelPulse/skyoracle/internal/textfit"
	"github.com/FeelPulse/skyoracle/internal/tui"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const version = "0.1.0"

const checkTimeout = 3 * time.Minute

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "skyoracle",
		Short:         "SkyOracle - Bluesky fact-check and media bot",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.skyoracle/config.yaml)")

	root.AddCommand(
		newMonitorCmd(),
		newCheckCmd(),
		newStatusCmd(),
		newInitCmd(),
		newVersionCmd(),
		newServiceCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

func newMonitorCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch for mentions and reply until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, w := range cfg.Validate().Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %s\n", w)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "🔮 SkyOracle v%s\n", version)
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "🧪 Dry run: replies are composed but not posted")
			}

			gw, err := gateway.New(cmd.Context(), cfg, gateway.Options{
				ConfigPath: configPath,
				Version:    version,
				DryRun:     dryRun,
			})
			if err != nil {
				return err
			}
			return gw.Start()
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compose replies without posting them")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var (
		mode     string
		language string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "check <post-url>",
		Short: "Evaluate one post and print the reply without posting it",
		Long: `Evaluate one post and print the reply without posting it.

The argument is a bsky.app post URL or an at:// URI. When the post is a
reply, the post it replies to is evaluated, exactly as for a mention.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := types.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q, supported: auto, factcheck, media", mode)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()

			gw, err := gateway.New(ctx, cfg, gateway.Options{
				ConfigPath:       configPath,
				Version:          version,
				DisableAnalytics: true,
			})
			if err != nil {
				return err
			}
			defer gw.Close(context.Background())

			result, err := gw.Check(ctx, args[0], m, language)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"target":   result.Thread.Target.Ref.URI,
					"mode":     result.Request.Mode,
					"language": result.Request.Language,
					"status":   result.Response.Status,
					"category": result.Response.Category,
					"reply":    result.Reply,
					"cached":   result.Response.Cached,
					"latency":  result.Latency.String(),
				})
			}

			fmt.Fprintf(out, "🎯 Target: %s\n", result.Thread.Target.Ref.URI)
			fmt.Fprintf(out, "🧭 Mode: %s (%s)\n", result.Request.Mode, result.Request.Language)
			fmt.Fprintf(out, "📋 Verdict: %s", result.Response.Status)
			if result.Response.Category != "" {
				fmt.Fprintf(out, " / %s", result.Response.Category)
			}
			fmt.Fprintf(out, "\n⏱️  %v\n\n", result.Latency.Round(time.Millisecond))
			fmt.Fprintln(out, result.Reply)
			fmt.Fprintf(out, "\n(%d characters)\n", textfit.Len(result.Reply))
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "auto", "evaluation mode: auto, factcheck, media")
	cmd.Flags().StringVarP(&language, "lang", "l", "", "reply language (default: the post's language)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists: %s (use --force to overwrite)", path)
			}

			path, err := config.Save(config.Default(), path)
			if err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ Config saved: %s\n\n", path)
			fmt.Fprintln(out, "Secrets stay out of the file. Set them in the environment or a .env file:")
			fmt.Fprintln(out, "  BLUESKY_USERNAME, BLUESKY_PASSWORD (app password)")
			fmt.Fprintln(out, "  GEMINI_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY")
			fmt.Fprintln(out, "\n🔍 Try it: skyoracle check <post-url>")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}

// statusURL derives the status endpoint base URL from a listen address
func statusURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func newStatusCmd() *cobra.Command {
	var (
		addr    string
		once    bool
		refresh time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live status of a running monitor",
		Long: `Show live status of a running monitor by polling its status endpoint.

The endpoint defaults to metrics.addr from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				addr = cfg.Metrics.Addr
			}
			if addr == "" {
				return fmt.Errorf("no status endpoint: set metrics.addr (METRICS_ADDR) or pass --addr")
			}
			url := statusURL(addr)

			if once {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				data, err := tui.Fetch(ctx, http.DefaultClient, url)
				if err != nil {
					return fmt.Errorf("failed to reach %s: %w", url, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🔮 SkyOracle v%s %s (%s)\n", data.Version, data.Status, data.Account)
				fmt.Fprintln(cmd.OutOrStdout(), tui.RenderStatus(data))
				return nil
			}
			return tui.Run(url, refresh)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "status endpoint address, e.g. :9090 or http://host:9090")
	cmd.Flags().BoolVar(&once, "once", false, "print one snapshot and exit")
	cmd.Flags().DurationVar(&refresh, "refresh", tui.DefaultRefresh, "refresh interval")
	return cmd
}
