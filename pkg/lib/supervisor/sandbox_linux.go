//go:build linux

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const cgroupRoot = "/sys/fs/cgroup/crawl-runner"

var (
	cgroupInitOnce sync.Once
	cgroupInitErr  error
)

// initCgroups prepares the cgroup root once. As non-root this is a no-op.
func initCgroups() error {
	cgroupInitOnce.Do(func() {
		cgroupInitErr = initCgroupsImpl()
	})
	return cgroupInitErr
}

func initCgroupsImpl() error {
	if os.Geteuid() != 0 {
		return nil
	}
	if err := os.MkdirAll(cgroupRoot, 0755); err != nil {
		return err
	}

	available, err := readControllerSet(filepath.Join(cgroupRoot, "cgroup.controllers"))
	if err != nil {
		return err
	}
	enabled, err := readControllerSet(filepath.Join(cgroupRoot, "cgroup.subtree_control"))
	if err != nil {
		return err
	}

	// Headless browsers are memory hungry; cap them per attempt.
	var toAdd []string
	for _, ctrl := range []string{"cpu", "memory"} {
		if available[ctrl] && !enabled[ctrl] {
			toAdd = append(toAdd, "+"+ctrl)
		}
	}
	if len(toAdd) > 0 {
		return writeString(filepath.Join(cgroupRoot, "cgroup.subtree_control"), strings.Join(toAdd, " "))
	}
	return nil
}

func readControllerSet(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, f := range strings.Fields(string(data)) {
		set[strings.TrimPrefix(f, "+")] = true
	}
	return set, nil
}

// newSandbox puts the attempt in its own process group and asks the kernel
// to kill it if the supervisor dies. As root it also gets its own cgroup.
func newSandbox(id string, memoryHigh int64) (*sandbox, error) {
	sb := &sandbox{
		id: id,
		attr: &syscall.SysProcAttr{
			Setpgid:   true,
			Pdeathsig: syscall.SIGKILL,
		},
	}
	if os.Geteuid() != 0 {
		return sb, nil
	}
	// Without cgroup support the process group alone still works.
	if err := initCgroups(); err != nil {
		return sb, nil
	}

	dir, err := setupCgroupFor(id, memoryHigh)
	if err != nil {
		_ = os.Remove(dir)
		return sb, nil
	}
	f, err := os.Open(dir)
	if err != nil {
		_ = os.Remove(dir)
		return sb, nil
	}
	sb.cgroup = dir
	sb.cgroupFile = f
	sb.attr.UseCgroupFD = true
	sb.attr.CgroupFD = int(f.Fd())
	return sb, nil
}

func setupCgroupFor(id string, memoryHigh int64) (string, error) {
	dir := filepath.Join(cgroupRoot, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	if controllerEnabled(cgroupRoot, "cpu") {
		if err := writeString(filepath.Join(dir, "cpu.weight"), "100"); err != nil {
			return dir, err
		}
	}
	if memoryHigh > 0 && controllerEnabled(cgroupRoot, "memory") {
		if err := writeString(filepath.Join(dir, "memory.high"), fmt.Sprint(memoryHigh)); err != nil {
			return dir, err
		}
	}
	return dir, nil
}

func controllerEnabled(cgPath, controller string) bool {
	enabled, err := readControllerSet(filepath.Join(cgPath, "cgroup.subtree_control"))
	if err != nil {
		return false
	}
	return enabled[controller]
}

func killCgroup(dir string) error {
	return writeString(filepath.Join(dir, "cgroup.kill"), "1")
}

// cgroupPopulated reports whether any process is still charged to dir.
func cgroupPopulated(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "cgroup.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if f := strings.Fields(line); len(f) == 2 && f[0] == "populated" {
			return f[1] == "1"
		}
	}
	return false
}

// removeCgroup removes dir, giving a just-killed cgroup a moment to drain.
func removeCgroup(dir string) error {
	var err error
	for i := 0; i < 20; i++ {
		if err = os.Remove(dir); err == nil || os.IsNotExist(err) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return err
}

func writeString(path, val string) error {
	return os.WriteFile(path, []byte(val), 0644)
}
