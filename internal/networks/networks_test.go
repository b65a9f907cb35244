package networks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	r := Builtin()

	eth, err := r.Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), eth.ChainID)
	assert.NotEmpty(t, eth.RPCURL)
	assert.NotEmpty(t, eth.Contract)

	_, err = r.Get("hyperledger")
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestParseValid(t *testing.T) {
	nets, err := Parse([]byte(`[
		{
			"name": "localnet",
			"chain_id": 1337,
			"rpc_url": "http://localhost:8545",
			"contract": "0x0000000000000000000000000000000000000001"
		}
	]`))
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.Equal(t, "localnet", nets[0].Name)
	assert.Equal(t, uint64(1337), nets[0].ChainID)
}

func TestParseSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing contract": `[{"name": "x", "chain_id": 1, "rpc_url": "http://h"}]`,
		"bad contract":     `[{"name": "x", "chain_id": 1, "rpc_url": "http://h", "contract": "nope"}]`,
		"bad rpc scheme":   `[{"name": "x", "chain_id": 1, "rpc_url": "ftp://h", "contract": "0x0000000000000000000000000000000000000001"}]`,
		"zero chain id":    `[{"name": "x", "chain_id": 0, "rpc_url": "http://h", "contract": "0x0000000000000000000000000000000000000001"}]`,
		"not a list":       `{"name": "x"}`,
		"unknown field":    `[{"name": "x", "chain_id": 1, "rpc_url": "http://h", "contract": "0x0000000000000000000000000000000000000001", "extra": true}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestTxURL(t *testing.T) {
	n := Network{ExplorerTx: "https://polygonscan.com/tx/%s"}
	assert.Equal(t, "https://polygonscan.com/tx/0xabc", n.TxURL("0xabc"))
	assert.Empty(t, Network{}.TxURL("0xabc"))
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"name": "ethereum",
			"chain_id": 1,
			"rpc_url": "http://my-node:8545",
			"contract": "0x0000000000000000000000000000000000000002"
		},
		{
			"name": "localnet",
			"chain_id": 1337,
			"rpc_url": "http://localhost:8545",
			"contract": "0x0000000000000000000000000000000000000001"
		}
	]`), 0600))

	r, err := Load(path)
	require.NoError(t, err)

	eth, err := r.Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, "http://my-node:8545", eth.RPCURL, "user entry overrides builtin")

	_, err = r.Get("localnet")
	assert.NoError(t, err)

	assert.Contains(t, r.Names(), "sepolia", "builtins still present")
}

func TestMixedCaseNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"name": "MyNet",
			"chain_id": 999,
			"rpc_url": "http://localhost:8545",
			"contract": "0x0000000000000000000000000000000000000003"
		},
		{
			"name": "Ethereum",
			"chain_id": 1,
			"rpc_url": "http://my-node:8545",
			"contract": "0x0000000000000000000000000000000000000004"
		}
	]`), 0600))

	r, err := Load(path)
	require.NoError(t, err)

	// Every spelling resolves, including the one Names advertises.
	for _, name := range []string{"MyNet", "mynet", "MYNET"} {
		n, err := r.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, uint64(999), n.ChainID)
	}
	assert.Contains(t, r.Names(), "mynet")

	// A mixed-case user entry still overrides the built-in.
	eth, err := r.Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, "http://my-node:8545", eth.RPCURL)
}

func TestLoadEmptyPath(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Builtin().Names(), r.Names())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
