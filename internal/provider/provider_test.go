package provider_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/re-cinq/overstory/internal/config"
	"github.com/re-cinq/overstory/internal/provider"
)

func TestResolveNativeReturnsNoEnv(t *testing.T) {
	cfg := &config.Config{
		Models: map[string]string{"builder": "native/claude-sonnet"},
	}
	res, err := provider.Resolve(cfg, "builder")
	require.NoError(t, err)
	require.Equal(t, "claude-sonnet", res.Model)
	require.Nil(t, res.Env)
}

func TestResolveGatewayEmitsEnvBundle(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.Provider{
			"gateway1": {Type: "proxy", BaseURL: "https://gw.example.com"},
		},
		Models: map[string]string{"builder": "gateway1/sonnet-4"},
	}
	res, err := provider.Resolve(cfg, "builder")
	require.NoError(t, err)
	require.Equal(t, "sonnet-4", res.Model)
	require.Equal(t, "https://gw.example.com", res.Env["ANTHROPIC_BASE_URL"])
	require.Equal(t, "", res.Env["ANTHROPIC_API_KEY"])
	require.Equal(t, "sonnet-4", res.Env["ANTHROPIC_DEFAULT_SONNET_MODEL"])
}

func TestResolveUnconfiguredCapabilityReturnsEmpty(t *testing.T) {
	cfg := &config.Config{}
	res, err := provider.Resolve(cfg, "builder")
	require.NoError(t, err)
	require.Equal(t, "", res.Model)
}

func TestResolveUnknownProviderErrors(t *testing.T) {
	cfg := &config.Config{Models: map[string]string{"builder": "missing/sonnet-4"}}
	_, err := provider.Resolve(cfg, "builder")
	require.Error(t, err)
}
