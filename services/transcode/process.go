package transcode

import (
	"fmt"
	"log"
	"os/exec"
	"sync"
	"syscall"
)

// Process is the capability surface for one spawned transcoder subprocess.
// The orchestrator only ever talks to this interface, so tests can substitute
// a fake without invoking a real encoder binary.
type Process interface {
	Start() error
	IsAlive() bool
	Kill() error
	// ExitCode returns the subprocess exit status, or -1 while it is still
	// running (or was never started).
	ExitCode() int
}

// Launcher builds a Process for the given argument list.
type Launcher func(args []string) Process

// NewFFmpegLauncher returns a Launcher that spawns the configured ffmpeg
// binary in its own process group, so killing a session cannot leave orphaned
// encoder children behind.
func NewFFmpegLauncher(ffmpegPath string) Launcher {
	return func(args []string) Process {
		return &ffmpegProcess{binary: ffmpegPath, args: args}
	}
}

type ffmpegProcess struct {
	binary string
	args   []string

	mu       sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
}

func (p *ffmpegProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process already started")
	}

	cmd := exec.Command(p.binary, p.args...)
	// New process group: the group kill in Kill() takes out any children
	// ffmpeg forks along with ffmpeg itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.binary, err)
	}

	p.cmd = cmd
	p.exitCode = -1
	p.done = make(chan struct{})

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if cmd.ProcessState != nil {
			p.exitCode = cmd.ProcessState.ExitCode()
		}
		p.mu.Unlock()
		if err != nil {
			log.Printf("[transcode] ffmpeg pid %d exited: %v", cmd.Process.Pid, err)
		}
		close(p.done)
	}()

	return nil
}

func (p *ffmpegProcess) IsAlive() bool {
	p.mu.Lock()
	done := p.done
	started := p.cmd != nil
	p.mu.Unlock()

	if !started {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Kill terminates the whole process group. Errors from an already-exited
// process are not reported.
func (p *ffmpegProcess) Kill() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if !p.IsAlive() {
		return nil
	}

	// Negative pid addresses the process group created by Setpgid.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Group may already be gone; fall back to the process itself.
		if killErr := cmd.Process.Kill(); killErr != nil && p.IsAlive() {
			return fmt.Errorf("kill ffmpeg pid %d: %w", cmd.Process.Pid, killErr)
		}
	}
	return nil
}

func (p *ffmpegProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return -1
	}
	return p.exitCode
}
