package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"
)

const serviceName = "skyoracle"

const serviceTemplate = `[Unit]
Description=SkyOracle Bluesky bot
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=%s
ExecStart=%s
Restart=on-failure
RestartSec=10s
TimeoutStopSec=120s
Environment=HOME=%s

[Install]
WantedBy=default.target
`

// generateServiceFile creates the systemd service file content
func generateServiceFile(username, execPath, homeDir, cfgPath string) string {
	start := execPath + " monitor"
	if cfgPath != "" {
		start += " --config " + cfgPath
	}
	return fmt.Sprintf(serviceTemplate, username, start, homeDir)
}

// systemServicePath returns the path for system-wide service
func systemServicePath() string {
	return "/etc/systemd/system/" + serviceName + ".service"
}

// userServicePath returns the path for user service
func userServicePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user", serviceName+".service")
}

func getServicePath(system bool) string {
	if system {
		return systemServicePath()
	}
	return userServicePath()
}

// systemctlArgs prefixes --user unless the unit is system-wide
func systemctlArgs(system bool, args ...string) []string {
	if system {
		return args
	}
	return append([]string{"--user"}, args...)
}

func systemctl(cmd *cobra.Command, system bool, args ...string) error {
	c := exec.Command("systemctl", systemctlArgs(system, args...)...)
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	return c.Run()
}

// getExecutablePath returns the absolute path to the running binary
func getExecutablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Abs(exe)
}

// installServiceFile writes the unit file, creating parent directories
func installServiceFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied writing %s, run with sudo for a system service", path)
		}
		return fmt.Errorf("failed to write service file: %w", err)
	}
	return nil
}

func newServiceCmd() *cobra.Command {
	var system bool
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the systemd unit that runs the monitor",
	}
	cmd.PersistentFlags().BoolVarP(&system, "system", "s", false, "system-wide service (requires root); default is a user service")

	install := &cobra.Command{
		Use:   "install",
		Short: "Install the systemd service file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("failed to get current user: %w", err)
			}
			execPath, err := getExecutablePath()
			if err != nil {
				return err
			}
			cfgPath := configPath
			if cfgPath != "" {
				if cfgPath, err = filepath.Abs(cfgPath); err != nil {
					return err
				}
			}

			path := getServicePath(system)
			if err := installServiceFile(path, generateServiceFile(currentUser.Username, execPath, currentUser.HomeDir, cfgPath)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Service file installed: %s\n", path)
			systemctl(cmd, system, "daemon-reload")

			prefix := "systemctl --user"
			if system {
				prefix = "sudo systemctl"
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nTo enable and start:")
			fmt.Fprintf(cmd.OutOrStdout(), "  %s enable --now %s\n", prefix, serviceName)
			return nil
		},
	}

	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the service and remove its unit file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := getServicePath(system)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "⚠️ Service file not found (not installed?)")
				return nil
			}
			systemctl(cmd, system, "stop", serviceName)
			systemctl(cmd, system, "disable", serviceName)

			if err := os.Remove(path); err != nil {
				if os.IsPermission(err) {
					return fmt.Errorf("permission denied removing %s, run with sudo for a system service", path)
				}
				return fmt.Errorf("failed to remove service file: %w", err)
			}
			systemctl(cmd, system, "daemon-reload")
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Service uninstalled")
			return nil
		},
	}

	passthrough := func(action, short string) *cobra.Command {
		return &cobra.Command{
			Use:   action,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				err := systemctl(cmd, system, action, serviceName)
				// systemctl status exits non-zero for a stopped unit
				if action == "status" {
					return nil
				}
				return err
			},
		}
	}

	cmd.AddCommand(
		install,
		uninstall,
		passthrough("enable", "Enable the service at boot"),
		passthrough("disable", "Disable service autostart"),
		passthrough("status", "Show service status"),
	)
	return cmd
}
