package supervisor

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sandbox groups one crawler attempt with everything it spawns, so the whole
// tree can be signalled at once.
type sandbox struct {
	id   string
	attr *syscall.SysProcAttr
	// cgroupFile is held open until the child has started, when it is set.
	cgroupFile *os.File
	cgroup     string
	pgid       int
}

// started records the process group and drops the cgroup descriptor.
func (sb *sandbox) started(pid int) {
	sb.pgid = pid
	if sb.cgroupFile != nil {
		_ = sb.cgroupFile.Close()
		sb.cgroupFile = nil
	}
}

// signal delivers sig to the whole group. A group that is already gone is not an error.
func (sb *sandbox) signal(sig syscall.Signal) error {
	if sig == unix.SIGKILL && sb.cgroup != "" {
		if err := killCgroup(sb.cgroup); err == nil {
			return nil
		}
	}
	if sb.pgid <= 0 {
		return nil
	}
	err := unix.Kill(-sb.pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// alive reports whether any member of the group or the cgroup still exists.
func (sb *sandbox) alive() bool {
	if sb.cgroup != "" && cgroupPopulated(sb.cgroup) {
		return true
	}
	if sb.pgid <= 0 {
		return false
	}
	return unix.Kill(-sb.pgid, 0) == nil
}

// teardown kills whatever the crawler left behind and releases the sandbox.
// The crawler itself has been reaped by then; a browser it spawned may not have been.
func (sb *sandbox) teardown() error {
	var err error
	if sb.alive() {
		err = sb.signal(unix.SIGKILL)
	}
	sb.release()
	return err
}

func (sb *sandbox) release() {
	if sb.cgroupFile != nil {
		_ = sb.cgroupFile.Close()
		sb.cgroupFile = nil
	}
	if sb.cgroup != "" {
		_ = removeCgroup(sb.cgroup)
	}
}
