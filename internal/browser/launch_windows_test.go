//go:build windows

package browser

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestDetachLeavesConsoleGroup(t *testing.T) {
	cmd := exec.Command("cmd.exe")
	detach(cmd)
	require.NotNil(t, cmd.SysProcAttr)
	assert.NotZero(t, cmd.SysProcAttr.CreationFlags&windows.CREATE_NEW_PROCESS_GROUP)
	assert.NotZero(t, cmd.SysProcAttr.CreationFlags&windows.DETACHED_PROCESS)
}
