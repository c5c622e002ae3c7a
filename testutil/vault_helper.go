package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/modules/vault"
	"github.com/testcontainers/testcontainers-go/wait"
)

const vaultRootToken = "root-token"

type VaultHelper struct {
	container *vault.VaultContainer
	Address   string
	Token     string
}

// NewVaultContainer starts a dev-mode Vault server. Dev mode mounts a KV v2 engine at
// "secret/".
func NewVaultContainer(t require.TestingT, ctx context.Context) (*VaultHelper, error) {
	hostPort := strconv.Itoa(reservePort())
	vaultContainer, err := vault.Run(ctx,
		"hashicorp/vault:1.13.0",
		vault.WithToken(vaultRootToken),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/v1/sys/health").
				WithPort("8200/tcp").
				WithStartupTimeout(30*time.Second),
			wait.ForExposedPort().WithStartupTimeout(1*time.Minute)),
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
			hostConfig.PortBindings = nat.PortMap{nat.Port("8200/tcp"): []nat.PortBinding{{HostPort: hostPort}}}
		}),
	)
	require.NoError(t, err, "Failed to start Vault container")
	if err != nil {
		return nil, fmt.Errorf("failed to start Vault container: %w", err)
	}

	host, err := vaultContainer.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	port, err := vaultContainer.MappedPort(ctx, "8200")
	if err != nil {
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &VaultHelper{
		container: vaultContainer,
		Address:   fmt.Sprintf("http://%s:%s", host, port.Port()),
		Token:     vaultRootToken,
	}, nil
}

// WriteSecret stores data as a new version of mount/path through the vault CLI.
func (v *VaultHelper) WriteSecret(ctx context.Context, mount, path string, data map[string]string) (string, error) {
	return v.ExecuteVaultCommand(ctx, fmt.Sprintf("vault kv put %s/%s %s", mount, path, formatDataForVault(data)))
}

// ExecuteVaultCommand runs command through sh inside the container.
func (v *VaultHelper) ExecuteVaultCommand(ctx context.Context, command string) (string, error) {
	code, reader, err := v.container.Exec(ctx, []string{"sh", "-c", command}, tcexec.Multiplexed())
	if err != nil {
		return "", fmt.Errorf("failed to execute command %q in Vault container: %w", command, err)
	}
	output, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read vault output: %w", err)
	}
	if code != 0 {
		return string(output), fmt.Errorf("vault exited with code %d: %s", code, output)
	}
	return string(output), nil
}

func (v *VaultHelper) Terminate(ctx context.Context) error {
	if v.container != nil {
		return v.container.Terminate(ctx)
	}
	return nil
}

func formatDataForVault(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	formatted := make([]string, 0, len(keys))
	for _, key := range keys {
		formatted = append(formatted, fmt.Sprintf("%s=%q", key, data[key]))
	}
	return strings.Join(formatted, " ")
}
