package supervise

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Tharunreddy-N/JnP-Automation/internal/locks"
)

// ReadPIDFile returns the pid recorded at path, or 0 when the file is
// missing or unreadable.
func ReadPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// WritePIDFile records pid at path.
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// RemovePIDFile deletes the pid file. Missing files are fine.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// CleanStalePIDFile removes the pid file when its recorded process is
// dead. Reports whether a live pid remains.
func CleanStalePIDFile(path string, alive func(int) bool) (int, error) {
	if alive == nil {
		alive = locks.PIDAlive
	}
	pid := ReadPIDFile(path)
	if pid == 0 {
		return 0, RemovePIDFile(path)
	}
	if alive(pid) {
		return pid, nil
	}
	return 0, RemovePIDFile(path)
}
