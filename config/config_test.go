package config_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/intent-gmp/config"
)

const testCfg = `
log_level: debug
hub_chain: hub
chains:
  hub:
    chain_id: 1
    family: native
  sepolia:
    chain_id: 11155111
    family: evm
    rpc:
      host: https://sepolia.infura.io/v3/${INFURA_PROJECT_KEY}
      timeout: 20s
    endpoint_address: 0x7301CFA0e1756B71869E93d4e4Dca5c7d0eb0AA6
    outbox_address: 0x4aa42145Aa6Ebf72e164C9bBC74fbD3788045016
    start_block: 6478411
    block_confirmations: 12
    max_block_range_size: 2000
    poll_interval: 15s
relay:
  polling_interval: 10s
  master_key_env: GMP_RELAY_KEY
  admin_address: 0x73cA9C4e72fF109259cf7374F038faf950949C51
postgres:
  user: test_user
  password: test_password
  host: test_host
  port: 5432
  database: test_db
presenter:
  host: 0.0.0.0:3333
`

//nolint:paralleltest
func TestReadConfigWithEnv(t *testing.T) {
	t.Setenv("INFURA_PROJECT_KEY", "12345678")
	cfg, err := config.ReadConfig([]byte(testCfg))
	require.NoError(t, err)

	require.Equal(t, logrus.DebugLevel, cfg.LogLevel.Level())
	require.Equal(t, "hub", cfg.HubChain)
	require.Len(t, cfg.Chains, 2)

	hub := cfg.Chains["hub"]
	require.Equal(t, uint64(1), hub.ChainID)
	require.False(t, hub.IsEVM())
	// Per-chain poll interval defaults to the relay polling interval.
	require.Equal(t, 10*time.Second, hub.PollInterval.Duration())

	sepolia := cfg.Chains["sepolia"]
	require.True(t, sepolia.IsEVM())
	require.Equal(t, "https://sepolia.infura.io/v3/12345678", sepolia.RPC.Host)
	require.Equal(t, 20*time.Second, sepolia.RPC.Timeout.Duration())
	require.Equal(t, uint64(2000), sepolia.MaxBlockRangeSize)
	require.Equal(t, 15*time.Second, sepolia.PollInterval.Duration())

	require.Equal(t, "GMP_RELAY_KEY", cfg.Relay.MasterKeyEnv)
	require.Equal(t, "test_db", cfg.DBConfig.DB)
	require.Equal(t, "0.0.0.0:3333", cfg.Presenter.Host)
}

func TestReadConfigErrors(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string
		cfg  string
	}{
		{"empty", ""},
		{"unknown field", "unknown_field: 1"},
		{
			"missing hub chain",
			"chains:\n  a:\n    chain_id: 1\n    family: native\nrelay:\n  master_key_env: KEY\n",
		},
		{
			"hub not among chains",
			"hub_chain: b\nchains:\n  a:\n    chain_id: 1\n    family: native\nrelay:\n  master_key_env: KEY\n",
		},
		{
			"hub not native",
			"hub_chain: a\nchains:\n  a:\n    chain_id: 1\n    family: evm\n    rpc:\n      host: http://localhost:8545\n    endpoint_address: 0x01\n    outbox_address: 0x02\nrelay:\n  master_key_env: KEY\n",
		},
		{
			"duplicate chain ids",
			"hub_chain: a\nchains:\n  a:\n    chain_id: 1\n    family: native\n  b:\n    chain_id: 1\n    family: native\nrelay:\n  master_key_env: KEY\n",
		},
		{
			"evm without rpc",
			"hub_chain: a\nchains:\n  a:\n    chain_id: 1\n    family: native\n  b:\n    chain_id: 2\n    family: evm\n    endpoint_address: 0x01\n    outbox_address: 0x02\nrelay:\n  master_key_env: KEY\n",
		},
		{
			"evm without endpoint address",
			"hub_chain: a\nchains:\n  a:\n    chain_id: 1\n    family: native\n  b:\n    chain_id: 2\n    family: evm\n    rpc:\n      host: http://localhost:8545\n    outbox_address: 0x02\nrelay:\n  master_key_env: KEY\n",
		},
		{
			"unknown family",
			"hub_chain: a\nchains:\n  a:\n    chain_id: 1\n    family: solana\nrelay:\n  master_key_env: KEY\n",
		},
		{
			"missing master key env",
			"hub_chain: a\nchains:\n  a:\n    chain_id: 1\n    family: native\nrelay:\n  polling_interval: 5s\n",
		},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.ReadConfig([]byte(test.cfg))
			require.Error(t, err)
		})
	}
}
