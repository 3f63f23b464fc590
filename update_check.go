package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	selfupdate "github.com/creativeprojects/go-selfupdate"
	"golang.org/x/mod/semver"
)

const (
	releaseSlug         = "scripness/failshot"
	updateCheckInterval = 24 * time.Hour
)

type updateCheckCache struct {
	LastCheck     time.Time `json:"lastCheck"`
	LatestVersion string    `json:"latestVersion"`
}

// updateNotice holds the result of a background update check.
var updateNotice chan string

// startUpdateCheck checks for a newer release in the background.
// Call printUpdateNotice before exiting to display the result.
func startUpdateCheck() {
	if version == "dev" {
		return
	}

	updateNotice = make(chan string, 1)

	go func() {
		defer close(updateNotice)
		defer func() {
			// never crash the main process
			recover()
		}()

		if latest, ok := checkForUpdate(); ok {
			updateNotice <- latest
		}
	}()
}

// printUpdateNotice prints a notification if a newer version was found.
// Non-blocking: if the check hasn't finished yet, it skips.
func printUpdateNotice() {
	if updateNotice == nil {
		return
	}
	select {
	case v, ok := <-updateNotice:
		if ok && v != "" {
			os.Stderr.WriteString("\nA new version of failshot is available: v" + v + " (current: v" + version + ")\nRun 'failshot upgrade' to update.\n")
		}
	default:
	}
}

// isNewerVersion compares two versions with or without a leading "v"
func isNewerVersion(latest, current string) bool {
	l, c := canonicalVersion(latest), canonicalVersion(current)
	if !semver.IsValid(l) || !semver.IsValid(c) {
		return false
	}
	return semver.Compare(l, c) > 0
}

func canonicalVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func checkForUpdate() (string, bool) {
	return checkForUpdateAt(updateCheckCachePath(), time.Now(), func(ctx context.Context) (string, bool) {
		latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
		if err != nil || !found {
			return "", false
		}
		return latest.Version(), true
	})
}

// checkForUpdateAt answers from the cache while it is fresh and calls detect
// otherwise, refreshing the cache with what detect found
func checkForUpdateAt(cachePath string, now time.Time, detect func(ctx context.Context) (string, bool)) (string, bool) {
	latest, fresh := loadUpdateCache(cachePath, now)
	if !fresh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var found bool
		if latest, found = detect(ctx); !found {
			return "", false
		}
		saveUpdateCache(cachePath, latest, now)
	}

	if !isNewerVersion(latest, version) {
		return "", false
	}
	return latest, true
}

func loadUpdateCache(path string, now time.Time) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var cache updateCheckCache
	if json.Unmarshal(data, &cache) != nil || now.Sub(cache.LastCheck) >= updateCheckInterval {
		return "", false
	}
	return cache.LatestVersion, true
}

func saveUpdateCache(path, latest string, now time.Time) {
	data, err := json.Marshal(updateCheckCache{LastCheck: now, LatestVersion: latest})
	if err != nil {
		return
	}
	AtomicWriteFile(path, data)
}

func updateCheckCachePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "failshot", "update-check.json")
	}
	return filepath.Join(os.TempDir(), "failshot-update-check.json")
}
