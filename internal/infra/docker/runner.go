// Package docker executes compiled test programs inside containers via
// the official Docker SDK, isolating them from the host the harness
// runs on.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/kballard/go-shellquote"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"testrig/internal/domain/harness"
	"testrig/internal/ports"
)

const defaultWorkdir = "/testrig"

// Config describes how to create a new Runner.
type Config struct {
	// Image is the container image programs run in.
	Image string
	// Workdir is where artifacts are placed inside the container.
	Workdir string
	// Target is the triple programs were compiled for; it selects the
	// image platform when the registry offers several.
	Target string
	// Timeout bounds one program run; zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
	// MemoryLimitBytes caps container memory when positive.
	MemoryLimitBytes int64
}

// Runner executes compiled test programs inside Docker containers.
type Runner struct {
	cli      dockerClient
	cfg      Config
	platform *specs.Platform
	pullOnce sync.Once
	pullErr  error
}

// ensure Runner implements ports.ProgramRunner.
var _ ports.ProgramRunner = (*Runner)(nil)

// New creates a Runner using the provided configuration.
func New(cfg Config) (*Runner, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("container image must be provided")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return newRunner(cli, cfg), nil
}

func newRunner(cli dockerClient, cfg Config) *Runner {
	if cfg.Workdir == "" {
		cfg.Workdir = defaultWorkdir
	}
	return &Runner{
		cli:      cli,
		cfg:      cfg,
		platform: platformForTriple(cfg.Target),
	}
}

// Close releases the underlying Docker client resources.
func (r *Runner) Close() error {
	if r.cli == nil {
		return nil
	}
	return r.cli.Close()
}

// RunProgram ships the program and its support files into a fresh
// container, runs it there, and returns the captured process record.
// A run that exceeds the configured timeout is stopped and reported
// with exit code -1 rather than failing the harness.
func (r *Runner) RunProgram(ctx context.Context, spec ports.RunSpec) (*harness.ProcResult, error) {
	if err := r.ensureImage(ctx); err != nil {
		return nil, err
	}

	files, err := loadFiles(spec)
	if err != nil {
		return nil, err
	}

	progName := filepath.Base(spec.Program)
	cmd := append([]string{"./" + progName}, spec.Args...)
	env := []string{"LD_LIBRARY_PATH=" + r.cfg.Workdir}
	for _, kv := range spec.Env {
		env = append(env, kv.Key+"="+kv.Value)
	}

	attachStdin := spec.Stdin != ""
	containerID, cleanup, err := r.createContainer(ctx, cmd, env, attachStdin)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := r.copyFiles(ctx, containerID, files); err != nil {
		return nil, fmt.Errorf("copy files: %w", err)
	}

	var attachConn io.WriteCloser
	if attachStdin {
		attach, err := r.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
			Stream: true,
			Stdin:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("attach container: %w", err)
		}
		defer attach.Close()
		attachConn = attach.Conn
	}

	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	if attachConn != nil {
		if _, err := io.Copy(attachConn, strings.NewReader(spec.Stdin)); err != nil {
			return nil, fmt.Errorf("write stdin: %w", err)
		}
		if closer, ok := attachConn.(interface{ CloseWrite() error }); ok {
			_ = closer.CloseWrite()
		}
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
	}
	status, err := r.waitForExit(waitCtx, containerID)
	if cancel != nil {
		cancel()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && r.cfg.Timeout > 0 && ctx.Err() == nil {
			return r.handleTimeout(containerID, cmd)
		}
		return nil, err
	}

	logCtx := ctx
	if logCtx.Err() != nil {
		logCtx = context.Background()
	}
	stdout, stderr, err := r.fetchLogs(logCtx, containerID)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	return &harness.ProcResult{
		ExitCode: int(status.StatusCode),
		Stdout:   stdout,
		Stderr:   stderr,
		Cmdline:  shellquote.Join(cmd...),
	}, nil
}

type fileSpec struct {
	Name string
	Mode int64
	Data []byte
}

// loadFiles reads the program and its auxiliary libraries from the
// host. The program is the only file that needs the execute bit.
func loadFiles(spec ports.RunSpec) ([]fileSpec, error) {
	data, err := os.ReadFile(spec.Program)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	files := []fileSpec{{Name: filepath.Base(spec.Program), Mode: 0o755, Data: data}}

	for _, aux := range spec.AuxFiles {
		data, err := os.ReadFile(aux)
		if err != nil {
			return nil, fmt.Errorf("read aux file %q: %w", aux, err)
		}
		files = append(files, fileSpec{Name: filepath.Base(aux), Mode: 0o644, Data: data})
	}
	return files, nil
}

func (r *Runner) ensureImage(ctx context.Context) error {
	r.pullOnce.Do(func() {
		reader, err := r.cli.ImagePull(ctx, r.cfg.Image, image.PullOptions{})
		if err != nil {
			r.pullErr = fmt.Errorf("pull image: %w", err)
			return
		}
		defer reader.Close()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			r.pullErr = fmt.Errorf("consume pull output: %w", err)
		}
	})
	return r.pullErr
}

func (r *Runner) createContainer(ctx context.Context, cmd, env []string, attachStdin bool) (string, func(), error) {
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: 1_000_000_000,
		},
	}
	if r.cfg.MemoryLimitBytes > 0 {
		hostConfig.Resources.Memory = r.cfg.MemoryLimitBytes
		hostConfig.Resources.MemorySwap = r.cfg.MemoryLimitBytes
	}

	resp, err := r.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:        r.cfg.Image,
			Cmd:          cmd,
			Env:          env,
			AttachStdout: true,
			AttachStderr: true,
			AttachStdin:  attachStdin,
			OpenStdin:    attachStdin,
			StdinOnce:    attachStdin,
			WorkingDir:   r.cfg.Workdir,
		},
		hostConfig,
		nil,
		r.platform,
		"",
	)
	if err != nil {
		return "", nil, fmt.Errorf("create container: %w", err)
	}

	cleanup := func() {
		_ = r.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}
	return resp.ID, cleanup, nil
}

func (r *Runner) copyFiles(ctx context.Context, containerID string, files []fileSpec) error {
	reader, err := makeArchive(files)
	if err != nil {
		return err
	}
	return r.cli.CopyToContainer(ctx, containerID, r.cfg.Workdir, reader,
		container.CopyToContainerOptions{AllowOverwriteDirWithFile: true})
}

func makeArchive(files []fileSpec) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	now := time.Now()
	for _, file := range files {
		mode := file.Mode
		if mode == 0 {
			mode = 0o644
		}
		header := &tar.Header{
			Name:    file.Name,
			Mode:    mode,
			Size:    int64(len(file.Data)),
			ModTime: now,
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write tar contents: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// handleTimeout stops the container and reports what it printed before
// the limit; exit code -1 marks the truncated run.
func (r *Runner) handleTimeout(containerID string, cmd []string) (*harness.ProcResult, error) {
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStop()

	if err := r.cli.ContainerStop(stopCtx, containerID, container.StopOptions{}); err != nil && !client.IsErrNotFound(err) {
		return nil, fmt.Errorf("stop container after timeout: %w", err)
	}

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelWait()
	if _, err := r.waitForExit(waitCtx, containerID); err != nil &&
		!errors.Is(err, context.DeadlineExceeded) && !client.IsErrNotFound(err) {
		return nil, fmt.Errorf("wait for container after timeout: %w", err)
	}

	stdout, stderr, err := r.fetchLogs(context.Background(), containerID)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	return &harness.ProcResult{
		ExitCode: -1,
		Stdout:   stdout,
		Stderr:   stderr + "\n(program timed out)",
		Cmdline:  shellquote.Join(cmd...),
	}, nil
}

func (r *Runner) waitForExit(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := r.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

func (r *Runner) fetchLogs(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	logs, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer logs.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, logs); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// platformForTriple maps a target triple's architecture to the OCI
// platform, letting the daemon pick matching images on multi-arch
// registries. Unknown triples leave the choice to the daemon.
func platformForTriple(triple string) *specs.Platform {
	arch, _, ok := strings.Cut(triple, "-")
	if !ok {
		return nil
	}
	var ociArch string
	switch arch {
	case "x86_64":
		ociArch = "amd64"
	case "aarch64":
		ociArch = "arm64"
	case "i686", "i586":
		ociArch = "386"
	case "arm", "armv7":
		ociArch = "arm"
	case "s390x":
		ociArch = "s390x"
	case "powerpc64le":
		ociArch = "ppc64le"
	default:
		return nil
	}
	return &specs.Platform{OS: "linux", Architecture: ociArch}
}
