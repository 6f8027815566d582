package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FeelPulse/skyoracle/internal/config"
)

// Build info - set via ldflags at build time:
//
//	go build -ldflags "-X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ) -X main.gitCommit=$(git rev-parse --short HEAD)"
var (
	buildTime = "unknown"
	gitCommit = "unknown"
)

// VersionInfo contains version and build information
type VersionInfo struct {
	Version   string
	GoVersion string
	BuildTime string
	GitCommit string
	Platform  string
	Features  []string
}

// GetVersionInfo returns the version information. cfg may be nil.
func GetVersionInfo(cfg *config.Config) *VersionInfo {
	return &VersionInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		BuildTime: buildTime,
		GitCommit: gitCommit,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Features:  detectEnabledFeatures(cfg),
	}
}

// detectEnabledFeatures lists the configured provider and optional components
func detectEnabledFeatures(cfg *config.Config) []string {
	features := []string{}
	if cfg == nil {
		return features
	}

	provider := cfg.AI.Provider
	if provider == "" {
		provider = "gemini"
	}
	features = append(features, "ai:"+provider)
	if cfg.AI.FallbackProvider != "" {
		features = append(features, "fallback:"+cfg.AI.FallbackProvider)
	}
	if cfg.AI.CacheTTL > 0 {
		features = append(features, "cache")
	}
	switch sink := strings.ToLower(cfg.Analytics.Sink); sink {
	case "", "none":
	default:
		features = append(features, "analytics:"+sink)
	}
	if cfg.Metrics.Addr != "" {
		features = append(features, "metrics:"+cfg.Metrics.Addr)
	}
	if cfg.Monitor.RequesterLimit > 0 {
		features = append(features, "ratelimit")
	}
	return features
}

// String returns formatted version information
func (v *VersionInfo) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("SkyOracle v%s\n", v.Version))
	sb.WriteString(fmt.Sprintf("  Go:       %s\n", v.GoVersion))
	sb.WriteString(fmt.Sprintf("  Platform: %s\n", v.Platform))
	sb.WriteString(fmt.Sprintf("  Build:    %s\n", v.BuildTime))
	sb.WriteString(fmt.Sprintf("  Commit:   %s\n", v.GitCommit))

	if len(v.Features) > 0 {
		sb.WriteString(fmt.Sprintf("  Features: %s\n", strings.Join(v.Features, ", ")))
	} else {
		sb.WriteString("  Features: (none enabled)\n")
	}

	return sb.String()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(configPath)
			if err != nil {
				cfg = nil
			}
			fmt.Fprint(cmd.OutOrStdout(), GetVersionInfo(cfg).String())
		},
	}
}
