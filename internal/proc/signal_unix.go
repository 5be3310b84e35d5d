//go:build unix

package proc

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func termGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGTERM)
}

func killGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}

func isProcessGone(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
