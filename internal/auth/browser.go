package auth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser asks the desktop environment to open url.
func OpenBrowser(url string) error {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		return fmt.Errorf("exec.Command failed: %w", err)
	}

	return nil
}
