package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/bouncerbot/bouncer/pkg/app"
)

// program adapts the application loop to the service manager's start and
// stop callbacks.
type program struct {
	params app.RunParams
	errCh  chan error
}

func (p *program) Start(_ service.Service) error {
	go func() { p.errCh <- app.Run(p.params) }()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	// The application loop shuts down on SIGTERM. Raising it here funnels
	// manager-initiated stops through the same path as manual ones.
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	return <-p.errCh
}

// newService builds the service handle. A non-empty cfgPath is propagated to
// the installed unit as an absolute path, since the manager runs the daemon
// from a different working directory.
func newService(cfgPath string) (service.Service, *program, error) {
	args := []string{"service", "run"}
	if cfgPath != "" {
		abs, err := filepath.Abs(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		cfgPath = abs
		args = append(args, "--config", abs)
	}

	prg := &program{
		params: app.RunParams{
			ConfigPath: cfgPath,
			Version:    version,
			Commit:     commit,
			Date:       date,
		},
		errCh: make(chan error, 1),
	}
	svc, err := service.New(prg, &service.Config{
		Name:        "bouncer",
		DisplayName: "Bouncer",
		Description: "Links Telegram users to Discord accounts and keeps groups members-only for the right roles.",
		Arguments:   args,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, prg, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the system service (systemd, launchd, ...)",
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file the service should use")

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(controlCmd(action))
	}
	cmd.AddCommand(statusCmd(), serviceRunCmd())
	return cmd
}

func controlCmd(action string) *cobra.Command {
	shorts := map[string]string{
		"install":   "Install bouncer as a system service",
		"uninstall": "Remove the service registration",
		"start":     "Start the installed service",
		"stop":      "Stop the installed service",
		"restart":   "Restart the installed service",
	}
	return &cobra.Command{
		Use:   action,
		Short: shorts[action],
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			svc, _, err := newService(cfgPath)
			if err != nil {
				return err
			}
			if err := service.Control(svc, action); err != nil {
				return err
			}
			fmt.Printf("service %s: done\n", action)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the service is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			svc, _, err := newService(cfgPath)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if errors.Is(err, service.ErrNotInstalled) {
				fmt.Println("not installed")
				return nil
			}
			if err != nil {
				return err
			}
			switch status {
			case service.StatusRunning:
				fmt.Println("running")
			case service.StatusStopped:
				fmt.Println("stopped")
			default:
				fmt.Println("unknown")
			}
			return nil
		},
	}
}

// serviceRunCmd is what the installed unit executes. Hidden because it only
// makes sense under a service manager.
func serviceRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			svc, prg, err := newService(cfgPath)
			if err != nil {
				return err
			}
			if err := svc.Run(); err != nil {
				return err
			}
			select {
			case err := <-prg.errCh:
				return err
			default:
				return nil
			}
		},
	}
}
