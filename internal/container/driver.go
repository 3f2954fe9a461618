// Package container is the Container Driver: a narrow interface over the
// Docker runtime (create/start/exec/kill/remove) per spec.md §4.1, grounded
// on the teacher's ContainerManager and WorkerPool.executeCode, with OOM
// detection added via ContainerInspect (resolves SPEC_FULL.md §9's second
// Open Question) and base64-env payload passing per spec.md §9.
package container

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"

	"optimus/internal/oerr"
)

// Limits caps memory and CPU for a created container.
type Limits struct {
	MemoryMB int64
	CPUCores float64
}

// Handle identifies a provisioned container.
type Handle struct {
	ID string
}

// ExecResult is the outcome of one exec call.
type ExecResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	ElapsedMS int64
	TimedOut  bool
	OOMKilled bool
}

// Driver adapts the Docker SDK to the Container Driver contract of spec.md §4.1.
type Driver struct {
	client *client.Client
	logger *logrus.Logger
}

// New constructs a Driver using the ambient Docker host configuration.
func New(logger *logrus.Logger) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, oerr.Wrap(err, oerr.ContainerCreate)
	}
	return &Driver{client: cli, logger: logger}, nil
}

// Create provisions a container with the given image, resource limits, and
// environment, but does not start it. The container gets a small writable
// scratch directory at /code via a tmpfs mount so compile artifacts persist
// between S1 and S2 without touching the image's filesystem.
func (d *Driver) Create(ctx context.Context, image string, limits Limits, env []string) (Handle, error) {
	cfg := &container.Config{
		Image: image,
		Env:   env,
		Tty:   false,
		// Block forever on an entrypoint so exec calls have a live target;
		// real runner images supply their own long-lived entrypoint.
		Cmd: []string{"sleep", "infinity"},
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   limits.MemoryMB * 1024 * 1024,
			NanoCPUs: int64(limits.CPUCores * 1e9),
		},
		NetworkMode: "none",
		Tmpfs:       map[string]string{"/code": "rw,exec,size=64m"},
	}

	resp, err := d.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return Handle{}, oerr.Wrap(err, oerr.ContainerCreate)
	}
	return Handle{ID: resp.ID}, nil
}

// Start transitions the container to running.
func (d *Driver) Start(ctx context.Context, h Handle) error {
	if err := d.client.ContainerStart(ctx, h.ID, container.StartOptions{}); err != nil {
		return oerr.Wrap(err, oerr.ContainerStart)
	}
	return nil
}

// Exec runs command inside the running container with env set and stdin
// piped, enforcing deadline by killing the exec (not the container) on
// expiry, per spec.md §4.1.
func (d *Driver) Exec(ctx context.Context, h Handle, cmd []string, env []string, stdin []byte, deadline time.Duration) (ExecResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	execCfg := container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdin:  len(stdin) > 0,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}

	created, err := d.client.ContainerExecCreate(execCtx, h.ID, execCfg)
	if err != nil {
		return ExecResult{}, oerr.Wrap(err, oerr.Exec)
	}

	attach, err := d.client.ContainerExecAttach(execCtx, created.ID, container.ExecAttachOptions{Tty: false})
	if err != nil {
		return ExecResult{}, oerr.Wrap(err, oerr.Exec)
	}
	defer attach.Close()

	if len(stdin) > 0 {
		go func() {
			_, _ = attach.Conn.Write(stdin)
			attach.CloseWrite()
		}()
	}

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- err
	}()

	start := time.Now()
	var timedOut bool
	select {
	case <-copyDone:
	case <-execCtx.Done():
		timedOut = true
		// Exec deadline hit: the exec is killed by cancelling execCtx, which
		// tears down the attach connection; the container itself lives on.
	}
	elapsed := time.Since(start)

	inspect, inspectErr := d.client.ContainerExecInspect(context.Background(), created.ID)
	exitCode := -1
	if inspectErr == nil {
		exitCode = inspect.ExitCode
	}

	result := ExecResult{
		ExitCode:  exitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ElapsedMS: elapsed.Milliseconds(),
		TimedOut:  timedOut,
	}

	if !timedOut && exitCode != 0 {
		if oom, err := d.wasOOMKilled(context.Background(), h); err == nil {
			result.OOMKilled = oom
		}
	}

	return result, nil
}

// wasOOMKilled inspects the container for the OOMKilled flag, resolving the
// OOM-detection Open Question per SPEC_FULL.md §9.
func (d *Driver) wasOOMKilled(ctx context.Context, h Handle) (bool, error) {
	info, err := d.client.ContainerInspect(ctx, h.ID)
	if err != nil {
		return false, err
	}
	if info.State == nil {
		return false, nil
	}
	return info.State.OOMKilled, nil
}

// Kill is an idempotent SIGKILL-equivalent teardown.
func (d *Driver) Kill(ctx context.Context, h Handle) error {
	if err := d.client.ContainerKill(ctx, h.ID, "SIGKILL"); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		d.logger.WithFields(logrus.Fields{"container": h.ID}).Warn("kill failed, continuing to remove")
	}
	return nil
}

// Remove reclaims resources; idempotent, tolerant of an already-dead container.
func (d *Driver) Remove(ctx context.Context, h Handle) error {
	err := d.client.ContainerRemove(ctx, h.ID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return oerr.Wrap(err, oerr.Internal)
	}
	return nil
}

// EnsureImage pulls ref if it is not already present locally.
func (d *Driver) EnsureImage(ctx context.Context, ref string) error {
	_, _, err := d.client.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	reader, err := d.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return oerr.Wrap(err, oerr.ImagePull)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}
