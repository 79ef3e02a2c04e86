package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/gabomarinc/konsul-console/internal/config"
	"github.com/gabomarinc/konsul-console/internal/daemon"
	"github.com/gabomarinc/konsul-console/internal/profile"
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

	app := fx.New(
		daemon.Module(daemon.Params{Profile: profileName, Config: cfg}),
	)

	app.Run()
}
