package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// DefaultImage is the JRE image used when DockerLauncher.Image is empty.
const DefaultImage = "eclipse-temurin:21-jre"

const containerLibDir = "/opt/runsheet/lib"

type dockerClient interface {
	Close() error
	ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerLauncher runs each invocation in a throwaway JRE container. Every
// file named on the classpath or in the arguments is bind-mounted read-only.
type DockerLauncher struct {
	Image string
	// Memory caps the container, in bytes. Zero means no limit.
	Memory int64

	cli dockerClient
}

// NewDockerLauncher connects to the daemon described by the environment.
func NewDockerLauncher(img string) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker launcher: create client: %w", err)
	}
	return newDockerLauncherWithClient(cli, img), nil
}

func newDockerLauncherWithClient(cli dockerClient, img string) *DockerLauncher {
	if img == "" {
		img = DefaultImage
	}
	return &DockerLauncher{Image: img, cli: cli}
}

func (l *DockerLauncher) Name() string { return "docker" }

// Boot pulls the image.
func (l *DockerLauncher) Boot(ctx context.Context) error {
	reader, err := l.cli.ImagePull(ctx, l.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", l.Image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull image %s: %w", l.Image, err)
	}
	return nil
}

func (l *DockerLauncher) Run(ctx context.Context, inv Invocation, stdout, stderr io.Writer) (int, error) {
	m := newMounter()
	classpath := m.classpath(inv.Classpath)
	args := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		args[i] = m.arg(a)
	}

	cmd := []string{"java"}
	if classpath != "" {
		cmd = append(cmd, "-cp", classpath)
	}
	cmd = append(cmd, inv.MainClass)
	cmd = append(cmd, args...)

	hostConfig := &container.HostConfig{
		Binds:       m.binds,
		NetworkMode: "none",
	}
	if l.Memory > 0 {
		hostConfig.Resources.Memory = l.Memory
	}

	created, err := l.cli.ContainerCreate(ctx, &container.Config{
		Image:           l.Image,
		Cmd:             cmd,
		NetworkDisabled: true,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return -1, fmt.Errorf("create container: %w", err)
	}
	defer l.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})

	if err := l.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return -1, fmt.Errorf("start container: %w", err)
	}

	code, err := l.wait(ctx, created.ID)
	if err != nil {
		return -1, err
	}

	logs, err := l.cli.ContainerLogs(ctx, created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return code, fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		return code, fmt.Errorf("demux logs: %w", err)
	}
	return code, nil
}

func (l *DockerLauncher) wait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := l.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return -1, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		return -1, fmt.Errorf("wait container: %w", err)
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Close releases the docker client.
func (l *DockerLauncher) Close() error {
	return l.cli.Close()
}

// mounter rewrites absolute host paths into container paths and records the
// binds needed to reach them.
type mounter struct {
	binds []string
	seen  map[string]string
}

func newMounter() *mounter {
	return &mounter{seen: make(map[string]string)}
}

func (m *mounter) mount(hostPath string) string {
	if guest, ok := m.seen[hostPath]; ok {
		return guest
	}
	guest := fmt.Sprintf("%s/%d-%s", containerLibDir, len(m.seen), filepath.Base(hostPath))
	m.seen[hostPath] = guest
	m.binds = append(m.binds, hostPath+":"+guest+":ro")
	return guest
}

func (m *mounter) classpath(cp string) string {
	if cp == "" {
		return ""
	}
	parts := filepath.SplitList(cp)
	for i, p := range parts {
		if abs, err := filepath.Abs(p); err == nil {
			parts[i] = m.mount(abs)
		}
	}
	return strings.Join(parts, ":")
}

// arg mounts arguments naming existing host files; everything else, inline
// script text included, is passed through.
func (m *mounter) arg(a string) string {
	if !filepath.IsAbs(a) || strings.ContainsRune(a, '\n') {
		return a
	}
	if info, err := os.Stat(a); err == nil && info.Mode().IsRegular() {
		return m.mount(a)
	}
	return a
}
