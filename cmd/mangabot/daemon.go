package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"mangabot/internal/config"

	"github.com/spf13/cobra"
)

const serviceLabel = "net.mangabot.serve"

// serviceSpec describes how the service manager starts 'mangabot serve'.
type serviceSpec struct {
	Label   string
	Exec    string
	Args    []string
	WorkDir string
	OutLog  string
	ErrLog  string
}

// newServiceSpec pins the config by absolute path and, when a .env sits next
// to it, passes that file explicitly since service managers start in /.
func newServiceSpec(execPath, cfgPath, logDir string) serviceSpec {
	workDir := filepath.Dir(cfgPath)
	args := []string{"serve", "--config", cfgPath}
	if envPath := filepath.Join(workDir, ".env"); fileExists(envPath) {
		args = append(args, "--env-file", envPath)
	}
	return serviceSpec{
		Label:   serviceLabel,
		Exec:    execPath,
		Args:    args,
		WorkDir: workDir,
		OutLog:  filepath.Join(logDir, "serve.log"),
		ErrLog:  filepath.Join(logDir, "serve.err.log"),
	}
}

// CommandLine is the systemd ExecStart value.
func (s serviceSpec) CommandLine() string {
	return strings.Join(append([]string{s.Exec}, s.Args...), " ")
}

// serviceTarget is where one service manager keeps its unit file and how the
// operator drives it afterwards.
type serviceTarget struct {
	path  string
	tmpl  *template.Template
	hints []string
}

func targetFor(goos, home string) (serviceTarget, error) {
	switch goos {
	case "darwin":
		path := filepath.Join(home, "Library", "LaunchAgents", serviceLabel+".plist")
		return serviceTarget{
			path: path,
			tmpl: launchdTemplate,
			hints: []string{
				"launchctl load " + path,
				"launchctl unload " + path,
			},
		}, nil
	case "linux":
		return serviceTarget{
			path: filepath.Join(home, ".config", "systemd", "user", "mangabot.service"),
			tmpl: systemdTemplate,
			hints: []string{
				"systemctl --user daemon-reload",
				"systemctl --user enable --now mangabot",
				"journalctl --user -u mangabot -f",
			},
		}, nil
	default:
		return serviceTarget{}, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func renderService(tmpl *template.Template, spec serviceSpec) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, spec); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background service (launchd/systemd)",
	}
	cmd.AddCommand(installDaemonCmd(), uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install 'mangabot serve' as a user service",
		Long:  "Writes a launchd agent (macOS) or systemd user unit (Linux) that keeps 'mangabot serve' running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("cannot determine home directory: %w", err)
			}
			target, err := targetFor(runtime.GOOS, home)
			if err != nil {
				return err
			}
			cfgPath, err := filepath.Abs(config.ExpandPath(resolveConfigPath()))
			if err != nil {
				return err
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}

			logDir := filepath.Join(config.DefaultConfigDir(), "logs")
			unit, err := renderService(target.tmpl, newServiceSpec(execPath, cfgPath, logDir))
			if err != nil {
				return err
			}
			if printOnly {
				fmt.Fprintln(cmd.OutOrStdout(), unit)
				return nil
			}

			for _, dir := range []string{logDir, filepath.Dir(target.path)} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(target.path, []byte(unit), 0o644); err != nil {
				return err
			}

			fmt.Printf("Service file written: %s\n", target.path)
			fmt.Println("Next:")
			for _, h := range target.hints {
				fmt.Printf("  %s\n", h)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "print the service file instead of installing it")
	return cmd
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the MangaBot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("cannot determine home directory: %w", err)
			}
			target, err := targetFor(runtime.GOOS, home)
			if err != nil {
				return err
			}
			if err := os.Remove(target.path); err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no service installed at %s", target.path)
				}
				return err
			}
			fmt.Printf("Service file removed: %s\n", target.path)
			fmt.Println("Stop the running service with the manager if it is still loaded.")
			return nil
		},
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var launchdTemplate = template.Must(template.New("launchd").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.Exec}}</string>
{{- range .Args}}
		<string>{{.}}</string>
{{- end}}
	</array>
	<key>WorkingDirectory</key>
	<string>{{.WorkDir}}</string>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
	</dict>
	<key>ThrottleInterval</key>
	<integer>10</integer>
	<key>StandardOutPath</key>
	<string>{{.OutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{.ErrLog}}</string>
</dict>
</plist>
`))

var systemdTemplate = template.Must(template.New("systemd").Parse(`[Unit]
Description=MangaBot manga chat server
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
WorkingDirectory={{.WorkDir}}
ExecStart={{.CommandLine}}
Restart=on-failure
RestartSec=10
TimeoutStopSec=20

[Install]
WantedBy=default.target
`))
