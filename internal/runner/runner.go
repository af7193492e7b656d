package runner

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

const ringBufSize = 64 * 1024 // 64KB

// RingBuffer is a fixed-size circular buffer that implements io.Writer.
// It retains only the most recent bytes written, up to its capacity.
type RingBuffer struct {
	buf  []byte
	size int
	pos  int
	full bool
}

// NewRingBuffer creates a RingBuffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{buf: make([]byte, size), size: size}
}

// Write implements io.Writer. It writes p into the ring buffer,
// overwriting the oldest data if capacity is exceeded.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= rb.size {
		// Data larger than buffer; keep only the tail.
		copy(rb.buf, p[n-rb.size:])
		rb.pos = 0
		rb.full = true
		return n, nil
	}

	// Copy what fits before wrap-around.
	oldPos := rb.pos
	first := rb.size - rb.pos
	if first >= n {
		copy(rb.buf[rb.pos:], p)
	} else {
		copy(rb.buf[rb.pos:], p[:first])
		copy(rb.buf, p[first:])
	}

	rb.pos = (rb.pos + n) % rb.size
	if !rb.full && rb.pos <= oldPos {
		rb.full = true
	}
	return n, nil
}

// String returns the buffered contents in chronological order.
func (rb *RingBuffer) String() string {
	if !rb.full {
		return string(rb.buf[:rb.pos])
	}
	// Buffer is full: data from pos..end is oldest, then 0..pos is newest.
	out := make([]byte, rb.size)
	n := copy(out, rb.buf[rb.pos:])
	copy(out[n:], rb.buf[:rb.pos])
	return string(out)
}

// TestContext describes the single test invocation being run.
type TestContext struct {
	Module     string
	TestName   string
	Collection string
	Trigger    string // "queue", "manual"
}

// Result captures one command run.
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
	Error      string
}

// Runner executes the configured test command for individual tests.
// The command template's "{test}" placeholder is replaced with the
// test name before execution.
type Runner struct {
	commandTemplate string
}

// RunOptions controls optional output destinations for a command run.
type RunOptions struct {
	ExtraStdout io.Writer
	ExtraStderr io.Writer
	WorkDir     string
}

func New(commandTemplate string) *Runner {
	return &Runner{commandTemplate: commandTemplate}
}

// Command renders the shell command for one test.
func (r *Runner) Command(testName string) string {
	return strings.ReplaceAll(r.commandTemplate, "{test}", testName)
}

// RunTest executes the test command with the provided context and
// timeout. The process environment is extended with the test context
// so suites can pick up their target collection.
func (r *Runner) RunTest(ctx context.Context, tc TestContext, timeout time.Duration, opts *RunOptions) *Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", r.Command(tc.TestName))
	cmd.Env = buildEnv(tc)
	if opts != nil && opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	stdoutBuf := NewRingBuffer(ringBufSize)
	stderrBuf := NewRingBuffer(ringBufSize)

	if opts != nil {
		cmd.Stdout = newTeeWriter(stdoutBuf, opts.ExtraStdout)
		cmd.Stderr = newTeeWriter(stderrBuf, opts.ExtraStderr)
	} else {
		cmd.Stdout = stdoutBuf
		cmd.Stderr = stderrBuf
	}

	start := time.Now()
	err := cmd.Run()
	durationMs := time.Since(start).Milliseconds()

	result := &Result{
		Stdout:     stdoutBuf.String(),
		Stderr:     stderrBuf.String(),
		DurationMs: durationMs,
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = "timeout"
		} else {
			result.Error = err.Error()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	return result
}

func buildEnv(tc TestContext) []string {
	env := os.Environ()
	if tc.Module != "" {
		env = append(env, "QA_MODULE="+tc.Module)
	}
	if tc.TestName != "" {
		env = append(env, "QA_TEST_NAME="+tc.TestName)
	}
	if tc.Collection != "" {
		env = append(env, "QA_COLLECTION="+tc.Collection)
	}
	if tc.Trigger != "" {
		env = append(env, "QA_TRIGGER="+tc.Trigger)
	}
	return env
}

type teeWriter struct {
	primary   io.Writer
	secondary io.Writer
}

func newTeeWriter(primary io.Writer, secondary io.Writer) io.Writer {
	if secondary == nil {
		return primary
	}
	return &teeWriter{
		primary:   primary,
		secondary: secondary,
	}
}

func (t *teeWriter) Write(p []byte) (int, error) {
	n, err := t.primary.Write(p)
	if t.secondary != nil {
		_, _ = t.secondary.Write(p)
	}
	return n, err
}
