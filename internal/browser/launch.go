package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/nregabot/nregabot/internal/config"
	"go.uber.org/zap"
)

var ErrChromeNotFound = errors.New("chrome executable not found")

var chromeCandidates = map[string][]string{
	"windows": {
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	},
	"darwin": {
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
	"linux": {
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
	},
}

// FindChrome resolves the Chrome executable: the configured path first, then
// well-known install locations for the current OS.
func FindChrome(configured string) (string, error) {
	return findChrome(configured, runtime.GOOS, exec.LookPath, fileExists)
}

func findChrome(configured, goos string, lookPath func(string) (string, error), exists func(string) bool) (string, error) {
	if configured != "" {
		if exists(configured) {
			return configured, nil
		}
		if p, err := lookPath(configured); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s", ErrChromeNotFound, configured)
	}
	for _, c := range chromeCandidates[goos] {
		if filepath.IsAbs(c) {
			if exists(c) {
				return c, nil
			}
			continue
		}
		if p, err := lookPath(c); err == nil {
			return p, nil
		}
	}
	return "", ErrChromeNotFound
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// ChromeArgs are the flags used to start a debuggable Chrome with its own
// profile, opened on the configured start page so the operator can log in.
func ChromeArgs(cfg config.BrowserConfig) []string {
	args := []string{
		"--remote-debugging-port=" + cfg.Port(),
		"--user-data-dir=" + cfg.ProfileDir,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if cfg.StartURL != "" {
		args = append(args, cfg.StartURL)
	}
	return args
}

// LaunchChrome starts Chrome detached from this process and waits until its
// debugger accepts connections.
func LaunchChrome(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (int, error) {
	path, err := FindChrome(cfg.ChromePath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
		return 0, fmt.Errorf("create profile dir: %w", err)
	}

	cmd := exec.Command(path, ChromeArgs(cfg)...)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start chrome: %w", err)
	}
	pid := cmd.Process.Pid
	logger.Info("Chrome launched",
		zap.String("path", path),
		zap.Int("pid", pid),
		zap.String("profile", cfg.ProfileDir))
	if err := cmd.Process.Release(); err != nil {
		logger.Warn("Failed to release chrome process", zap.Error(err))
	}

	s, err := Connect(ctx, cfg, logger)
	if err != nil {
		return pid, err
	}
	return pid, s.Close()
}
