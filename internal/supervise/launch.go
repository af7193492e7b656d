package supervise

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ExecLauncher launches the worker command through the shell.
type ExecLauncher struct {
	Command string
	WorkDir string
}

func (l *ExecLauncher) Launch(ctx context.Context) (Process, <-chan error, error) {
	cmd := exec.Command("sh", "-c", l.Command)
	if l.WorkDir != "" {
		cmd.Dir = l.WorkDir
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Own process group so Stop can signal the whole worker tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("launch worker: %w", err)
	}

	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()
	return &execProcess{cmd: cmd}, exitCh, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

// Stop sends SIGTERM to the worker's process group, then SIGKILL
// after grace.
func (p *execProcess) Stop(grace time.Duration) error {
	pgid := -p.cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		return err
	}
	deadline := time.After(grace)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			return syscall.Kill(pgid, syscall.SIGKILL)
		case <-tick.C:
			if err := syscall.Kill(pgid, syscall.Signal(0)); err != nil {
				return nil
			}
		}
	}
}

// externalProcess wraps a pid the supervisor did not start itself.
type externalProcess struct {
	pid int
}

func (p *externalProcess) PID() int {
	return p.pid
}

func (p *externalProcess) Stop(grace time.Duration) error {
	proc, err := os.FindProcess(p.pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	deadline := time.After(grace)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			return proc.Signal(syscall.SIGKILL)
		case <-tick.C:
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				return nil
			}
		}
	}
}

// HTTPProber probes a health URL; any 2xx answer is healthy.
func HTTPProber(url string) Prober {
	client := &http.Client{Timeout: 5 * time.Second}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
}

// PortProber probes whether anything accepts connections on the port.
func PortProber(host string, port int) Prober {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	return func(ctx context.Context) bool {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}
