package appconfig

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestEnvVarSubstitution(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	os.Setenv("WAREHOUSE_TEST_NAME", "node-1")
	os.Setenv("WAREHOUSE_TEST_REDIS_HOST", "redis.local")
	defer os.Unsetenv("WAREHOUSE_TEST_NAME")
	defer os.Unsetenv("WAREHOUSE_TEST_REDIS_HOST")

	require.NoError(t, Read("test_data/config.yaml", false, "config not found"))

	require.Equal(t, "node-1", viper.GetString("server.name"))
	require.Equal(t, "fallback-token", viper.GetString("server.admin_token"))
	require.Equal(t, 8, viper.GetInt("server.sync_tasks.pool.size"))
	require.Equal(t, "redis.local", viper.GetString("meta.storage.redis.host"))
	require.Equal(t, 6379, viper.GetInt("meta.storage.redis.port"))
	require.Equal(t, []string{"redis.local", "static"}, viper.GetStringSlice("hosts"))
}

func TestMissingMandatoryEnvVar(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	err := Read(`{"server": {"name": "${env.WAREHOUSE_TEST_DEFINITELY_UNSET}"}}`, false, "config not found")
	require.Error(t, err)
	require.Contains(t, err.Error(), "WAREHOUSE_TEST_DEFINITELY_UNSET")
}

func TestEnvOverridesAndDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	os.Setenv("SERVER_PORT", "9090")
	defer os.Unsetenv("SERVER_PORT")

	require.NoError(t, Read("", false, "config not found"))
	setDefaultParams(false)

	require.Equal(t, "9090", viper.GetString("server.port"))
	require.Equal(t, 16, viper.GetInt("server.sync_tasks.pool.size"))
	require.Equal(t, "inmemory", viper.GetString("meta.storage.type"))
}

func TestMissingConfigFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	require.Error(t, Read("test_data/absent.yaml", false, "config not found"))
	require.NoError(t, Read("test_data/absent.yaml", true, "config not found"), "containerized run starts without config")
}
