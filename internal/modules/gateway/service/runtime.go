package service

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
)

// ContainerSpec — что нужно для запуска одного gateway-контейнера.
type ContainerSpec struct {
	Name        string
	Image       string
	Env         map[string]string
	HostPort    int // фиксированный порт на хосте
	GatewayPort int // внутренний порт гейтвея
}

// ContainerRuntime — ровно те операции рантайма, которые нужны оркестратору.
// Прод — докер, тесты — фейк.
type ContainerRuntime interface {
	FindByName(ctx context.Context, name string) (id string, running bool, err error)
	Create(ctx context.Context, spec ContainerSpec) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, grace time.Duration) error
	Remove(ctx context.Context, id string) error
	Running(ctx context.Context, id string) (bool, error)
}

type DockerRuntime struct {
	cli *client.Client
}

func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "docker client")
	}
	return &DockerRuntime{cli: cli}, nil
}

func (d *DockerRuntime) FindByName(ctx context.Context, name string) (string, bool, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", false, errors.Wrap(err, "container list")
	}
	for _, c := range list {
		for _, n := range c.Names {
			if n == "/"+name || n == name {
				return c.ID, c.State == "running", nil
			}
		}
	}
	return "", false, nil
}

func (d *DockerRuntime) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	inner := nat.Port(fmt.Sprintf("%d/tcp", spec.GatewayPort))
	created, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          env,
			ExposedPorts: nat.PortSet{inner: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				inner: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", spec.HostPort)}},
			},
		},
		nil, nil, spec.Name,
	)
	if err != nil {
		return "", errors.Wrap(err, "container create")
	}
	return created.ID, nil
}

func (d *DockerRuntime) Start(ctx context.Context, id string) error {
	return errors.Wrap(d.cli.ContainerStart(ctx, id, container.StartOptions{}), "container start")
}

func (d *DockerRuntime) Stop(ctx context.Context, id string, grace time.Duration) error {
	secs := int(grace.Seconds())
	return errors.Wrap(d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}), "container stop")
}

func (d *DockerRuntime) Remove(ctx context.Context, id string) error {
	return errors.Wrap(d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}), "container remove")
}

func (d *DockerRuntime) Running(ctx context.Context, id string) (bool, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return false, errors.Wrap(err, "container inspect")
	}
	return info.State != nil && info.State.Running, nil
}
