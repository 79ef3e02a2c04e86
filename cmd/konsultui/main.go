package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gabomarinc/konsul-console/internal/config"
	"github.com/gabomarinc/konsul-console/internal/profile"
	"github.com/gabomarinc/konsul-console/internal/tui"
	"github.com/gabomarinc/konsul-console/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	c := client.New(cfg.Server.Listen)

	// Ping daemon health; auto-start if needed.
	if !pingDaemon(c) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", profileName)
		if err := startDaemon(profileName); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(c, 10*time.Second) {
			fmt.Fprintln(os.Stderr, "daemon did not become ready")
			os.Exit(1)
		}
	}

	app := tui.NewApp(c, profileName)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// pingDaemon checks if a daemon is responsive on the configured address.
func pingDaemon(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Status(ctx)
	return err == nil
}

func startDaemon(profileName string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	konsuld := filepath.Join(filepath.Dir(executable), "konsuld")

	if _, err := os.Stat(konsuld); err != nil {
		konsuld = "konsuld"
	}

	cmd := exec.Command(konsuld, "--profile", profileName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the daemon with a real status request (not just a TCP
// connect).
func waitForDaemon(c *client.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pingDaemon(c) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
