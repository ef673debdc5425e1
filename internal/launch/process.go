package launch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// localProcess is a process started by the LocalLauncher. It runs in its own
// process group so that Terminate reaches the telemetry wrapper, the runtime
// under test and the workload together.
type localProcess struct {
	cmd       *exec.Cmd
	files     []*os.File
	closeOnce sync.Once
}

func startProcess(argv []string, dir string, stdout, stderr *os.File) (*localProcess, int, error) {
	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 // nosemgrep
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, 0, err
	}
	return &localProcess{cmd: cmd}, cmd.Process.Pid, nil
}

func (p *localProcess) Wait() (exitCode int, err error) {
	defer p.closeFiles()
	err = p.cmd.Wait()
	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			return exitError.ExitCode(), nil
		}
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), nil
}

func (p *localProcess) Terminate() error {
	pid := p.cmd.Process.Pid
	slog.Debug("terminating process group", slog.Int("pgid", pid))
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (p *localProcess) closeFiles() {
	p.closeOnce.Do(func() {
		for _, f := range p.files {
			if err := f.Close(); err != nil {
				slog.Error("error closing run log", slog.String("file", f.Name()), slog.String("error", err.Error()))
			}
		}
	})
}
