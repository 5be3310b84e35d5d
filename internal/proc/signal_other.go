//go:build !unix

package proc

import (
	"errors"
	"os"
	"os/exec"
)

// Without process groups only the leader can be signalled.

func setGroup(*exec.Cmd) {}

func termGroup(pid int) error {
	return killGroup(pid)
}

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func isProcessGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
