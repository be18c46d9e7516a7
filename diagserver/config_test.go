/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package diagserver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storescrape/scrapekit/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		keyPrefix   string
		cfgData     string
		expectedCfg Config
	}{
		{
			name:        "defaults",
			expectedCfg: Config{Enabled: false, Address: DefaultAddress},
		},
		{
			name:        "yaml config",
			cfgData:     "diagServer:\n  enabled: true\n  address: 0.0.0.0:6060\n",
			expectedCfg: Config{Enabled: true, Address: "0.0.0.0:6060"},
		},
		{
			name:        "custom key prefix",
			keyPrefix:   "scraper.diag",
			cfgData:     "scraper:\n  diag:\n    enabled: true\n",
			expectedCfg: Config{Enabled: true, Address: DefaultAddress, keyPrefix: "scraper.diag"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(tt.keyPrefix)
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg, *cfg)
		})
	}
}

func TestConfigValidationErrors(t *testing.T) {
	cfg := NewConfig("")
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString("diagServer:\n  enabled: true\n  address: \"\"\n"), config.DataTypeYAML, cfg)
	require.EqualError(t, err, "diagServer.address: cannot be empty")
}
