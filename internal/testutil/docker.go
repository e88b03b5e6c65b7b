// Package testutil starts the local backends in deploy/docker-compose.yml
// for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// AzuriteAccountKey is the well-known key of the Azurite dev account.
const AzuriteAccountKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

// AzuriteAccountName is the Azurite dev account.
const AzuriteAccountName = "devstoreaccount1"

var servicePorts = map[string]int{
	"azurite":  10000,
	"mysql":    3306,
	"postgres": 5432,
}

// DockerTestEnv manages one Docker Compose project.
type DockerTestEnv struct {
	t           *testing.T
	composePath string
	projectName string
	services    []string
	started     bool
	ports       map[string]int
}

// StartDockerEnv starts services and waits until they are healthy. The test
// is skipped in short mode or when Docker is unavailable.
func StartDockerEnv(t *testing.T, services ...string) *DockerTestEnv {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	SkipIfDockerUnavailable(t)

	composePath := findComposePath()
	if composePath == "" {
		t.Fatal("deploy/docker-compose.yml not found")
	}

	env := &DockerTestEnv{
		t:           t,
		composePath: composePath,
		projectName: fmt.Sprintf("userprofile-test-%d", time.Now().UnixNano()),
		services:    services,
		ports:       make(map[string]int),
	}
	env.start()
	t.Cleanup(env.Stop)

	if err := env.WaitForHealthy(90 * time.Second); err != nil {
		t.Fatalf("Docker services failed to become healthy: %v", err)
	}
	if err := env.discoverPorts(); err != nil {
		t.Fatalf("Failed to discover ports: %v", err)
	}
	return env
}

// SkipIfDockerUnavailable skips the test if Docker is not available.
func SkipIfDockerUnavailable(t *testing.T) {
	t.Helper()
	if !IsDockerAvailable() {
		t.Skip("Docker not available, skipping integration test")
	}
}

// IsDockerAvailable reports whether the docker CLI, daemon and compose
// plugin are usable.
func IsDockerAvailable() bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	if err := exec.Command("docker", "ps").Run(); err != nil {
		return false
	}
	return exec.Command("docker", "compose", "version").Run() == nil
}

func (e *DockerTestEnv) compose(args ...string) *exec.Cmd {
	full := append([]string{"compose", "-f", e.composePath, "-p", e.projectName}, args...)
	cmd := exec.Command("docker", full...)
	cmd.Dir = filepath.Dir(e.composePath)
	return cmd
}

func (e *DockerTestEnv) start() {
	e.t.Helper()

	cmd := e.compose(append([]string{"up", "-d"}, e.services...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	e.t.Logf("Starting Docker services: %v", e.services)
	if err := cmd.Run(); err != nil {
		e.t.Fatalf("Failed to start Docker services: %v", err)
	}
	e.started = true
}

// Stop removes the project's containers and volumes.
func (e *DockerTestEnv) Stop() {
	if !e.started {
		return
	}
	cmd := e.compose("down", "-v")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		e.t.Logf("Warning: Failed to stop Docker services: %v", err)
	}
	e.started = false
}

// WaitForHealthy polls container state until every service reports healthy,
// or running when it has no health check.
func (e *DockerTestEnv) WaitForHealthy(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for services to be healthy")
		case <-ticker.C:
			if e.healthy() {
				return nil
			}
		}
	}
}

func (e *DockerTestEnv) healthy() bool {
	for _, service := range e.services {
		container := fmt.Sprintf("%s-%s-1", e.projectName, service)
		out, err := exec.Command("docker", "inspect", "--format",
			"{{if .State.Health}}{{.State.Health.Status}}{{else}}{{.State.Status}}{{end}}", container).Output()
		if err != nil {
			return false
		}
		switch strings.TrimSpace(string(out)) {
		case "healthy", "running":
		default:
			return false
		}
	}
	return true
}

func (e *DockerTestEnv) discoverPorts() error {
	for _, service := range e.services {
		containerPort, ok := servicePorts[service]
		if !ok {
			continue
		}
		out, err := e.compose("port", service, fmt.Sprintf("%d", containerPort)).Output()
		if err != nil {
			return fmt.Errorf("failed to get port for %s:%d: %w", service, containerPort, err)
		}

		// "0.0.0.0:32768"
		hostPort := 0
		addr := strings.TrimSpace(string(out))
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			_, err = fmt.Sscanf(addr[i+1:], "%d", &hostPort)
		}
		if err != nil || hostPort == 0 {
			return fmt.Errorf("unexpected port output format: %s", addr)
		}
		e.ports[service] = hostPort
		e.t.Logf("Discovered port mapping: %s:%d -> localhost:%d", service, containerPort, hostPort)
	}
	return nil
}

// Port returns the host port mapped to a service.
func (e *DockerTestEnv) Port(service string) int {
	return e.ports[service]
}

// AzuriteConnectionString returns a storage connection string for Azurite.
func (e *DockerTestEnv) AzuriteConnectionString() string {
	return fmt.Sprintf("DefaultEndpointsProtocol=http;AccountName=%s;AccountKey=%s;BlobEndpoint=http://127.0.0.1:%d/%s;",
		AzuriteAccountName, AzuriteAccountKey, e.Port("azurite"), AzuriteAccountName)
}

// MySQLConnectionString returns an ADO-style connection string, the format
// stored in Key Vault.
func (e *DockerTestEnv) MySQLConnectionString() string {
	return fmt.Sprintf("Server=127.0.0.1;Port=%d;Database=profiles;Uid=test;Pwd=test-password;SslMode=disable", e.Port("mysql"))
}

// PostgresConnectionString returns an ADO-style connection string.
func (e *DockerTestEnv) PostgresConnectionString() string {
	return fmt.Sprintf("Host=127.0.0.1;Port=%d;Database=profiles;Username=test;Password=test-password;SslMode=disable", e.Port("postgres"))
}

func findComposePath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			path := filepath.Join(dir, "deploy", "docker-compose.yml")
			if _, err := os.Stat(path); err == nil {
				return path
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
