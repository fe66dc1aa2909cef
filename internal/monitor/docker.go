package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// DockerMonitor checks if a Docker container is running
type DockerMonitor struct{}

func init() {
	RegisterMonitorType(&DockerMonitor{})
}

func (d *DockerMonitor) Name() string {
	return "docker"
}

func (d *DockerMonitor) Check(ctx context.Context, m *models.Monitor) (Result, error) {
	container := m.URL
	if container == "" {
		return Down(0, "No container name specified"), nil
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host := configString(m, "docker_host", ""); host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return Down(0, fmt.Sprintf("Failed to create Docker client: %v", err)), nil
	}
	defer cli.Close()

	start := time.Now()
	info, err := cli.ContainerInspect(ctx, container)
	ping := int(time.Since(start).Milliseconds())
	if err != nil {
		return Down(ping, fmt.Sprintf("Container not found: %v", err)), nil
	}

	if !info.State.Running {
		return Down(ping, fmt.Sprintf("Container is %s", info.State.Status)), nil
	}

	// A container whose health check is still starting is reported down; the
	// monitor's retry policy turns that into PENDING.
	if info.State.Health != nil && info.State.Health.Status != "" {
		health := info.State.Health.Status
		if health != "healthy" {
			return Down(ping, fmt.Sprintf("Container is not healthy (health: %s)", health)), nil
		}
		return Up(ping, fmt.Sprintf("Container is running and healthy - %dms", ping)), nil
	}

	return Up(ping, fmt.Sprintf("Container is running - %dms", ping)), nil
}

func (d *DockerMonitor) Validate(m *models.Monitor) error {
	if m.URL == "" {
		return fmt.Errorf("container name or ID is required")
	}
	if host, ok := m.Config["docker_host"]; ok {
		if _, ok := host.(string); !ok {
			return fmt.Errorf("docker_host must be a string")
		}
	}
	return nil
}
