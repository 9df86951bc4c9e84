package shared

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
)

// browserCommand picks the command that opens target on goos. A non-empty $BROWSER always wins.
func browserCommand(goos, browser, target string) (*exec.Cmd, error) {
	if browser != "" {
		return exec.Command(browser, target), nil
	}

	switch goos {
	case "darwin":
		return exec.Command("open", target), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", target), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target), nil
	}
	return nil, fmt.Errorf("unsupported platform: %s", goos)
}

// OpenBrowser opens the default system browser at an http(s) URL such as the leader registration page.
func OpenBrowser(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: not an http url: %q", ErrInvalidArgument, target)
	}

	cmd, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), u.String())
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go cmd.Wait()

	return nil
}
