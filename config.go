package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
)

const configFileName = "failshot.config.json"

// BrowserConfig configures the shared Chrome session
type BrowserConfig struct {
	Enabled        bool   `json:"enabled"`
	ExecutablePath string `json:"executablePath,omitempty"`
	Headless       bool   `json:"headless"`
	NoSandbox      bool   `json:"noSandbox,omitempty"`
	ScreenshotDir  string `json:"screenshotDir,omitempty"`
	StepTimeout    int    `json:"stepTimeout,omitempty"` // seconds per step
}

// ReportConfig configures persistence and report synthesis
type ReportConfig struct {
	ResultPath string `json:"resultPath,omitempty"`
	OutputDir  string `json:"outputDir,omitempty"`
	LogoPath   string `json:"logoPath,omitempty"`
	PDF        *bool  `json:"pdf,omitempty"`
}

// FailshotConfig is the configuration loaded from failshot.config.json
type FailshotConfig struct {
	BaseURL string         `json:"baseUrl,omitempty"`
	Suite   string         `json:"suite,omitempty"`
	Server  *ServerConfig  `json:"server,omitempty"`
	Browser *BrowserConfig `json:"browser,omitempty"`
	Report  *ReportConfig  `json:"report,omitempty"`
	Logging *LoggingConfig `json:"logging,omitempty"`
}

// ResolvedConfig is the fully resolved configuration
type ResolvedConfig struct {
	ProjectRoot string
	Config      FailshotConfig
}

// ConfigPath returns the path to failshot.config.json
func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, configFileName)
}

// StateDir returns the directory holding logs and the run lock
func StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".failshot")
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() FailshotConfig {
	cfg := FailshotConfig{}
	applyDefaults(&cfg)
	return cfg
}

// LoadConfig loads and validates failshot.config.json. A missing file yields defaults.
func LoadConfig(projectRoot string) (*ResolvedConfig, error) {
	var cfg FailshotConfig

	data, err := os.ReadFile(ConfigPath(projectRoot))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", configFileName, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &ResolvedConfig{
		ProjectRoot: projectRoot,
		Config:      cfg,
	}, nil
}

func applyDefaults(cfg *FailshotConfig) {
	if cfg.Suite == "" {
		cfg.Suite = "failshot.suite.json"
	}
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Browser == nil {
		cfg.Browser = &BrowserConfig{
			Enabled:  true,
			Headless: true,
		}
	}
	if cfg.Browser.ScreenshotDir == "" {
		cfg.Browser.ScreenshotDir = "screenshots"
	}
	if cfg.Browser.StepTimeout <= 0 {
		cfg.Browser.StepTimeout = 10
	}
	if cfg.Report == nil {
		cfg.Report = &ReportConfig{}
	}
	if cfg.Report.ResultPath == "" {
		cfg.Report.ResultPath = "report.json"
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = "."
	}
	if cfg.Report.LogoPath == "" {
		cfg.Report.LogoPath = "assets/logo.png"
	}
	if cfg.Report.PDF == nil {
		enabled := true
		cfg.Report.PDF = &enabled
	}
	if cfg.Logging == nil {
		cfg.Logging = DefaultLoggingConfig()
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *FailshotConfig) error {
	if cfg.BaseURL != "" && !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return fmt.Errorf("baseUrl must start with http:// or https:// (got %q)", cfg.BaseURL)
	}
	if cfg.Logging.MaxRuns < 0 {
		return fmt.Errorf("logging.maxRuns must not be negative")
	}
	if cfg.Server != nil {
		if cfg.Server.Start != "" {
			if _, err := shellwords.NewParser().Parse(cfg.Server.Start); err != nil {
				return fmt.Errorf("server.start is not a valid command (%q): %w", cfg.Server.Start, err)
			}
		}
		if cfg.Server.Ready != "" && !strings.HasPrefix(cfg.Server.Ready, "http://") && !strings.HasPrefix(cfg.Server.Ready, "https://") {
			return fmt.Errorf("server.ready must be an http(s) URL (got %q)", cfg.Server.Ready)
		}
		if cfg.Server.ReadyTimeout < 0 {
			return fmt.Errorf("server.readyTimeout must not be negative")
		}
	}
	return nil
}

// resolve joins a configured path onto the project root unless it is absolute
func (rc *ResolvedConfig) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rc.ProjectRoot, path)
}

// ResultPath returns the absolute path of the persisted run-result document
func (rc *ResolvedConfig) ResultPath() string {
	return rc.resolve(rc.Config.Report.ResultPath)
}

// ScreenshotDir returns the absolute screenshot directory
func (rc *ResolvedConfig) ScreenshotDir() string {
	return rc.resolve(rc.Config.Browser.ScreenshotDir)
}

// SuitePath returns the absolute suite path
func (rc *ResolvedConfig) SuitePath() string {
	return rc.resolve(rc.Config.Suite)
}

// ReportOptions builds synthesizer options from the config
func (rc *ResolvedConfig) ReportOptions() ReportOptions {
	return ReportOptions{
		BaseDir:   rc.ProjectRoot,
		OutputDir: rc.resolve(rc.Config.Report.OutputDir),
		LogoPath:  rc.Config.Report.LogoPath,
		PDF:       *rc.Config.Report.PDF,
	}
}

// findGitRoot finds the git root from a starting directory
func findGitRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// GetProjectRoot returns the project root (git root or cwd)
func GetProjectRoot() string {
	cwd, _ := os.Getwd()
	return findGitRoot(cwd)
}

// WriteDefaultConfig writes a default failshot.config.json, prefilling the
// server section when a dev script is found in package.json
func WriteDefaultConfig(projectRoot string) error {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://localhost:3000"
	if server, baseURL, ok := detectServer(projectRoot); ok {
		cfg.Server = &server
		cfg.BaseURL = baseURL
	}
	return AtomicWriteJSON(ConfigPath(projectRoot), cfg)
}
