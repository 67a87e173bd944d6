package chromeopener

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// ResolveChromePath picks the browser executable: explicit path, then
// CHROME_PATH, then the usual install locations. Empty means none found.
func ResolveChromePath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if envPath := os.Getenv("CHROME_PATH"); envPath != "" {
		return envPath
	}
	return findSystemChrome()
}

// InstallChromium downloads playwright's Chromium build and returns its
// executable path.
func InstallChromium() (string, error) {
	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}, Verbose: false}); err != nil {
		return "", fmt.Errorf("install chromium: %w", err)
	}
	pw, err := playwright.Run()
	if err != nil {
		return "", fmt.Errorf("start playwright: %w", err)
	}
	defer pw.Stop()

	path := pw.Chromium.ExecutablePath()
	if resolveExecutable(path) == "" {
		return "", fmt.Errorf("installed chromium not found at %s", path)
	}
	return path, nil
}

func findSystemChrome() string {
	var candidates []string

	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
	case "linux":
		candidates = []string{
			"chromium",
			"chromium-browser",
			"google-chrome-stable",
			"google-chrome",
		}
	case "windows":
		for _, env := range []string{"PROGRAMFILES", "PROGRAMFILES(X86)", "LOCALAPPDATA"} {
			if dir := os.Getenv(env); dir != "" {
				candidates = append(candidates,
					dir+`\Chromium\Application\chrome.exe`,
					dir+`\Google\Chrome\Application\chrome.exe`,
				)
			}
		}
	}

	for _, candidate := range candidates {
		if path := resolveExecutable(candidate); path != "" {
			return path
		}
	}
	return ""
}

// resolveExecutable checks absolute paths on disk and looks bare names up
// in PATH.
func resolveExecutable(nameOrPath string) string {
	if nameOrPath == "" {
		return ""
	}
	if strings.HasPrefix(nameOrPath, "/") || (len(nameOrPath) > 1 && nameOrPath[1] == ':') {
		if _, err := os.Stat(nameOrPath); err == nil {
			return nameOrPath
		}
		return ""
	}
	if path, err := exec.LookPath(nameOrPath); err == nil {
		return path
	}
	return ""
}
