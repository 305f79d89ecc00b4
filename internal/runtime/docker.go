// SPDX-License-Identifier: AGPL-3.0-or-later

package runtime

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/google/uuid"

	"github.com/musergi/ospreid/internal/osprerr"
)

// Docker implements Runtime by shelling out to the docker CLI, the same
// exec.CommandContext-and-capture-buffers approach the teacher's executil
// package uses for every external process it runs.
type Docker struct {
	// Bin is the executable to invoke; defaults to "docker" when empty.
	Bin string
}

// NewDocker returns a Docker runtime that invokes the "docker" binary on PATH.
func NewDocker() *Docker {
	return &Docker{Bin: "docker"}
}

func (d *Docker) bin() string {
	if d.Bin == "" {
		return "docker"
	}
	return d.Bin
}

func (d *Docker) CreateVolume(ctx context.Context) (string, error) {
	name := "osprei-" + uuid.NewString()
	_, _, err := d.run(ctx, "volume", "create", name)
	if err != nil {
		return "", wrapDockerError("create volume", err)
	}
	return name, nil
}

func (d *Docker) RemoveVolume(ctx context.Context, name string) error {
	_, _, err := d.run(ctx, "volume", "rm", "-f", name)
	if err != nil {
		return wrapDockerError("remove volume "+name, err)
	}
	return nil
}

func (d *Docker) RunStage(ctx context.Context, spec StageSpec) (StageResult, error) {
	args := []string{"run", "--rm"}
	if spec.Volume != "" {
		args = append(args, "-v", spec.Volume+":/workspace")
	}
	if spec.WorkingDir != "" {
		args = append(args, "-w", spec.WorkingDir)
	}
	for _, kv := range spec.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, spec.Image)
	args = append(args, spec.Command...)

	stdout, stderr, err := d.run(ctx, args...)
	result := StageResult{Stdout: stdout, Stderr: stderr}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, wrapDockerError("run stage "+spec.Image, err)
	}
	return result, nil
}

// run invokes the docker binary with args, capturing stdout and stderr
// separately. It returns the raw *exec.ExitError on a non-zero exit so
// callers can distinguish "the docker binary ran and exited non-zero" from
// "the binary could not be started at all". A non-zero exit covers both a
// failing container and docker itself failing (an unreachable daemon, a
// missing image); those cases are not told apart.
func (d *Docker) run(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, d.bin(), args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	return outBuf.String(), errBuf.String(), runErr
}

// wrapDockerError classifies a docker-CLI failure into osprerr.KindRuntime,
// distinguishing "the binary isn't even on PATH" from "it ran and failed".
func wrapDockerError(action string, err error) error {
	var notFound *exec.Error
	if errors.As(err, &notFound) {
		return osprerr.Wrap(osprerr.KindRuntime, err, "docker binary unavailable: %s", action)
	}
	return osprerr.Wrap(osprerr.KindRuntime, err, "docker %s", action)
}
