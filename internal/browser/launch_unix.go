//go:build unix

package browser

import (
	"os/exec"
	"syscall"
)

// detach starts Chrome in its own session so it survives this process and
// its terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
