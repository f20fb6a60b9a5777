package queueworker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// childEnv marks a re-executed worker process. A child sees ForkCount > 0
// but runs its consumers in-process instead of forking again.
const childEnv = "QUEUEWORKER_CHILD"

func isChildProcess() bool {
	return os.Getenv(childEnv) != ""
}

// supervise re-executes the current binary ForkCount times and becomes the
// parent supervisor: it forwards INT/TERM to the children and, unless Wait
// is disabled, blocks until they all exit.
func (w *Worker) supervise(ctx context.Context) error {
	exe, err := os.Executable()
	if err != nil {
		w.running.Store(false)
		return fmt.Errorf("queueworker: resolve executable: %w", err)
	}

	cmds := make([]*exec.Cmd, 0, w.cfg.opts.ForkCount)
	for i := 0; i < w.cfg.opts.ForkCount; i++ {
		cmd := exec.CommandContext(ctx, exe, os.Args[1:]...)
		cmd.Env = append(os.Environ(), childEnv+"=1")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			for _, started := range cmds {
				_ = started.Process.Signal(syscall.SIGTERM)
			}
			w.running.Store(false)
			return fmt.Errorf("queueworker: start worker process: %w", err)
		}
		w.cfg.logger.Info(ctx, "worker process started", "pid", cmd.Process.Pid)
		w.book.addProcess(cmd.Process.Pid, w.cfg.opts.ThreadCount)
		cmds = append(cmds, cmd)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigCh:
			w.cfg.logger.Info(ctx, "forwarding signal to worker processes", "signal", s.String())
			for _, cmd := range cmds {
				_ = cmd.Process.Signal(s)
			}
			w.Stop()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	if !w.cfg.opts.Wait {
		return nil
	}
	var firstErr error
	for _, cmd := range cmds {
		if err := cmd.Wait(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("queueworker: worker process %d: %w", cmd.Process.Pid, err)
		}
	}
	w.running.Store(false)
	return firstErr
}
