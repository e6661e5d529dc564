// Where: cli/internal/store/awsstore/ports.go
// What: Port resolution for local DynamoDB and S3 emulators.
// Why: Discover dynamic ports when Docker Compose assigns them.
package awsstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

const (
	composeProjectLabel = "com.docker.compose.project"
	composeServiceLabel = "com.docker.compose.service"
)

// PortRequest names a container port published by a compose service.
type PortRequest struct {
	Project       string
	Service       string
	ContainerPort int
}

type PortResolver interface {
	Resolve(ctx context.Context, request PortRequest) (int, error)
}

// DockerClient is the subset of the Docker SDK used for port discovery.
type DockerClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// NewDockerClient constructs a Docker SDK client using environment defaults.
func NewDockerClient() (DockerClient, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// DockerPortResolver finds published ports on compose-labelled containers.
type DockerPortResolver struct {
	Client DockerClient
}

func (r DockerPortResolver) Resolve(ctx context.Context, request PortRequest) (int, error) {
	if r.Client == nil {
		return 0, fmt.Errorf("docker client is nil")
	}
	if strings.TrimSpace(request.Project) == "" {
		return 0, fmt.Errorf("compose project is required")
	}
	if strings.TrimSpace(request.Service) == "" {
		return 0, fmt.Errorf("compose service is required")
	}
	if request.ContainerPort <= 0 {
		return 0, fmt.Errorf("container port is required")
	}

	labelFilter := filters.NewArgs()
	labelFilter.Add("label", fmt.Sprintf("%s=%s", composeProjectLabel, request.Project))

	containers, err := r.Client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: labelFilter,
	})
	if err != nil {
		return 0, err
	}

	for _, ctr := range containers {
		if ctr.Labels == nil || ctr.Labels[composeProjectLabel] != request.Project {
			continue
		}
		if ctr.Labels[composeServiceLabel] != request.Service {
			continue
		}
		for _, port := range ctr.Ports {
			if int(port.PrivatePort) != request.ContainerPort {
				continue
			}
			if port.PublicPort > 0 {
				return int(port.PublicPort), nil
			}
		}
	}

	return 0, fmt.Errorf("published port not found for %s:%d", request.Service, request.ContainerPort)
}

// resolvePort prefers a positive port in envVar, then the resolver, then
// defaultPort. An explicit "0" asks for discovery without the default.
func resolvePort(
	ctx context.Context,
	envVar string,
	defaultPort int,
	request PortRequest,
	resolver PortResolver,
) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(envVar))
	if raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			if port > 0 {
				return port, true
			}
			if resolver != nil {
				if resolved, err := resolver.Resolve(ctx, request); err == nil && resolved > 0 {
					return resolved, true
				}
			}
			return 0, false
		}
	}

	if resolver != nil && request.Project != "" {
		if resolved, err := resolver.Resolve(ctx, request); err == nil && resolved > 0 {
			return resolved, true
		}
	}
	if defaultPort > 0 {
		return defaultPort, true
	}
	return 0, false
}
