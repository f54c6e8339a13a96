package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// SystemInfo describes which print surfaces this machine can offer.
type SystemInfo struct {
	OS            string
	Architecture  string
	ChromePresent bool
	ChromePath    string
	CUPSPresent   bool
}

// DetectSystem probes for Chrome (preview and PDF) and the CUPS client tools
// (system printers). chromePath overrides the search when it exists.
func DetectSystem(chromePath string) SystemInfo {
	info := SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
	info.ChromePresent, info.ChromePath = FindChrome(chromePath)
	_, err := exec.LookPath("lp")
	info.CUPSPresent = err == nil
	return info
}

// --------------------------------------
// CHROME CHECK
// --------------------------------------

// FindChrome returns the Chrome/Chromium binary to drive, or false when none
// is installed.
func FindChrome(override string) (bool, string) {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return true, override
		}
	}

	for _, bin := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(bin); err == nil {
			return true, path
		}
	}

	for _, path := range commonChromePaths(runtime.GOOS) {
		if _, err := os.Stat(path); err == nil {
			return true, path
		}
	}
	return false, ""
}

func commonChromePaths(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}
	return nil
}

func chromeVersion(path string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}

// --------------------------------------
// REPORT
// --------------------------------------

// PrintSystemReport writes what DetectSystem found and how to fill the gaps.
// A missing Chrome only disables the preview and PDF paths, so it is not an
// error.
func PrintSystemReport(out io.Writer, info SystemInfo) {
	fmt.Fprintf(out, "System Information:\n")
	fmt.Fprintf(out, "  OS: %s\n", info.OS)
	fmt.Fprintf(out, "  Architecture: %s\n\n", info.Architecture)

	if info.ChromePresent {
		fmt.Fprintf(out, "✓ Chrome/Chromium found at: %s\n", info.ChromePath)
		fmt.Fprintf(out, "  Version: %s\n", chromeVersion(info.ChromePath))
	} else {
		fmt.Fprintln(out, "✗ Chrome / Chromium not found, previews are disabled.")
		showChromeInstallationInstructions(out, info.OS)
	}

	if info.CUPSPresent {
		fmt.Fprintln(out, "✓ CUPS client tools found, system printers are available.")
	} else {
		fmt.Fprintln(out, "✗ CUPS client tools (lp, lpstat) not found, only serial printers can be used.")
	}
}

func showChromeInstallationInstructions(out io.Writer, osType string) {
	switch osType {
	case "linux":
		fmt.Fprintln(out, "  Ubuntu / Debian: sudo apt install chromium-browser")
		fmt.Fprintln(out, "  Fedora: sudo dnf install chromium")
	case "darwin":
		fmt.Fprintln(out, "  brew install --cask google-chrome")
	case "windows":
		fmt.Fprintln(out, "  Download Google Chrome: https://www.google.com/chrome/")
	default:
		fmt.Fprintln(out, "  Please install Chrome or Chromium for your OS.")
	}
}
