package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTunnelDefinition_Valid(t *testing.T) {
	require.NoError(t, ValidateTunnelDefinition(testTunnelDef))
}

func TestValidateTunnelDefinition_CommentsAndCase(t *testing.T) {
	def := `# client config
[interface]
privatekey = GBt0JM5TbpIGyWAmB4lRxPjXLmQrVryvT0FCkXdOoGw=
; generated 2025-05-01
[peer]
publickey = bbfXs9nDJEmFuuUzfYlpIny3s2V+XkTHansBWLp7mzs=
endpoint = 203.0.113.7:51820
`
	require.NoError(t, ValidateTunnelDefinition(def))
}

func TestValidateTunnelDefinition_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		def     string
		wantMsg string
	}{
		{"empty", "", "empty"},
		{"whitespace", "   \n\t", "empty"},
		{"key outside section", "PrivateKey = abc\n", "outside of a section"},
		{"unknown section", "[Garbage]\nKey = v\n", "unknown section"},
		{"malformed header", "[Interface\nPrivateKey = x\n", "malformed section header"},
		{
			"unknown key",
			"[Interface]\nPrivateKey = GBt0JM5TbpIGyWAmB4lRxPjXLmQrVryvT0FCkXdOoGw=\nPostUp = iptables -A FORWARD\n",
			"unknown key",
		},
		{
			"bad key encoding",
			"[Interface]\nPrivateKey = %%%not-base64%%%\n",
			"not valid base64",
		},
		{
			"short key",
			"[Interface]\nPrivateKey = c2hvcnQ=\n",
			"32",
		},
		{
			"missing peer",
			"[Interface]\nPrivateKey = GBt0JM5TbpIGyWAmB4lRxPjXLmQrVryvT0FCkXdOoGw=\n",
			"[Peer]",
		},
		{
			"missing endpoint",
			testTunnelDefNoEndpoint,
			"Endpoint",
		},
		{
			"value missing",
			"[Interface]\nPrivateKey =\n",
			"no value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTunnelDefinition(tt.def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

var testTunnelDefNoEndpoint = strings.ReplaceAll(testTunnelDef, "Endpoint = vpn.example.com:51820\n", "")
