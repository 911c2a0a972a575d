// internal/browser/paths.go
package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// browserCandidates lists the executables to probe for a release channel on
// the given platform, in preference order. Unknown channels fall back to the
// channel name itself so anything on PATH still resolves.
func browserCandidates(channel, goos string) []string {
	switch goos {
	case "darwin":
		switch channel {
		case "chrome":
			return []string{"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"}
		case "chrome-beta":
			return []string{"/Applications/Google Chrome Beta.app/Contents/MacOS/Google Chrome Beta"}
		case "chrome-canary":
			return []string{"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary"}
		case "chromium":
			return []string{"/Applications/Chromium.app/Contents/MacOS/Chromium"}
		case "msedge":
			return []string{"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"}
		}
	case "windows":
		switch channel {
		case "chrome":
			return []string{
				`C:\Program Files\Google\Chrome\Application\chrome.exe`,
				`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			}
		case "chrome-beta":
			return []string{`C:\Program Files\Google\Chrome Beta\Application\chrome.exe`}
		case "chrome-canary":
			return []string{`C:\Program Files\Google\Chrome SxS\Application\chrome.exe`}
		case "chromium":
			return []string{`C:\Program Files\Chromium\Application\chrome.exe`}
		case "msedge":
			return []string{
				`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
				`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			}
		}
	default:
		switch channel {
		case "chrome":
			return []string{"google-chrome", "google-chrome-stable"}
		case "chrome-beta":
			return []string{"google-chrome-beta"}
		case "chrome-canary":
			return []string{"google-chrome-unstable"}
		case "chromium":
			return []string{"chromium", "chromium-browser"}
		case "msedge":
			return []string{"microsoft-edge", "microsoft-edge-stable"}
		}
	}
	return []string{channel}
}

// locateBrowser resolves a release channel name to an executable path.
// Absolute candidates are checked on disk; bare names are resolved via PATH.
func locateBrowser(channel string) (string, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return "", fmt.Errorf("browser channel is empty")
	}

	for _, candidate := range browserCandidates(channel, runtime.GOOS) {
		if filepath.IsAbs(candidate) {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			continue
		}
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no executable found for browser channel %q; set browser.exec_path to the binary directly", channel)
}
