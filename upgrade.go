package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	selfupdate "github.com/creativeprojects/go-selfupdate"
)

// upgradePlan says what `failshot upgrade` would do for a given release
type upgradePlan int

const (
	planUpToDate upgradePlan = iota
	planInstall
	planDevBuild
)

func planUpgrade(latest, current string) upgradePlan {
	if current == "dev" {
		return planDevBuild
	}
	if isNewerVersion(latest, current) {
		return planInstall
	}
	return planUpToDate
}

func cmdUpgrade(args []string) {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	checkOnly := fs.Bool("check", false, "Only report whether a newer release exists")
	force := fs.Bool("force", false, "Install the latest release even on a dev build")
	timeout := fs.Duration("timeout", time.Minute, "Give up after this long")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("Checking for updates...")
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to check for updates: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "No failshot release found for %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(1)
	}
	saveUpdateCache(updateCheckCachePath(), latest.Version(), time.Now())

	switch planUpgrade(latest.Version(), version) {
	case planUpToDate:
		fmt.Printf("failshot v%s is the latest release\n", version)
		return
	case planDevBuild:
		if !*force {
			fmt.Printf("Running a dev build; latest release is v%s (use --force to install it)\n", latest.Version())
			return
		}
	}

	fmt.Printf("New version available: v%s (current: v%s)\n", latest.Version(), version)
	if *checkOnly {
		return
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find executable path: %v\n", err)
		os.Exit(1)
	}
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Upgraded failshot to v%s (%s)\n", latest.Version(), exe)
}
