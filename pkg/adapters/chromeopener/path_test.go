package chromeopener

import (
	"os"
	"runtime"
	"testing"
)

func TestResolveChromePath_Precedence(t *testing.T) {
	t.Setenv("CHROME_PATH", "/env/chrome")

	if got := ResolveChromePath(""); got != "/env/chrome" {
		t.Errorf("expected CHROME_PATH to be used, got %s", got)
	}
	if got := ResolveChromePath("/explicit/chrome"); got != "/explicit/chrome" {
		t.Errorf("expected explicit path to take precedence, got %s", got)
	}
}

func TestResolveChromePath_SystemDefault(t *testing.T) {
	t.Setenv("CHROME_PATH", "")
	os.Unsetenv("CHROME_PATH")

	// May be empty when no browser is installed.
	t.Logf("System default Chrome path: %q", ResolveChromePath(""))
}

func TestResolveExecutable(t *testing.T) {
	known := "/bin/sh"
	if runtime.GOOS == "windows" {
		known = os.Getenv("COMSPEC")
	}
	if known != "" && resolveExecutable(known) != known {
		t.Errorf("expected %s to resolve", known)
	}
	if got := resolveExecutable("/definitely/not/a/real/path/chrome"); got != "" {
		t.Errorf("expected empty for a missing path, got %s", got)
	}
	if got := resolveExecutable("definitely-not-a-real-command-xyz123"); got != "" {
		t.Errorf("expected empty for a missing command, got %s", got)
	}
	if got := resolveExecutable(""); got != "" {
		t.Errorf("expected empty for an empty name, got %s", got)
	}
}
