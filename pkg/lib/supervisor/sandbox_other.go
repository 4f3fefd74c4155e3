//go:build !linux

package supervisor

import (
	"errors"
	"syscall"
)

func newSandbox(id string, _ int64) (*sandbox, error) {
	return &sandbox{
		id: id,
		attr: &syscall.SysProcAttr{
			Setpgid: true,
		},
	}, nil
}

func killCgroup(string) error {
	return errors.New("cgroups are not supported on this platform")
}

func cgroupPopulated(string) bool {
	return false
}

func removeCgroup(string) error {
	return nil
}
