// Package networks holds the registry of blockchains opensig can publish
// to. Built-in definitions cover the chains the registry contract is
// deployed on; a user-supplied JSON file can add networks or override the
// built-ins, and is validated against a JSON Schema before use.
package networks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownNetwork indicates a lookup for a network that is not defined.
var ErrUnknownNetwork = errors.New("networks: unknown network")

// Network describes one blockchain carrying the opensig registry contract.
type Network struct {
	// Name is the short identifier used in config and on the CLI.
	Name string `json:"name"`

	// ChainID is the EIP-155 chain id, also mixed into the hash chain.
	ChainID uint64 `json:"chain_id"`

	// RPCURL is the default JSON-RPC endpoint.
	RPCURL string `json:"rpc_url"`

	// Contract is the registry contract address on this chain.
	Contract string `json:"contract"`

	// ExplorerTx is a template building a block-explorer URL from a
	// transaction hash; %s marks where the hash goes.
	ExplorerTx string `json:"explorer_tx,omitempty"`
}

// TxURL renders the block-explorer URL for a transaction hash. Empty when
// the network has no explorer configured.
func (n Network) TxURL(txHash string) string {
	if n.ExplorerTx == "" {
		return ""
	}
	return strings.Replace(n.ExplorerTx, "%s", txHash, 1)
}

// schema validates a user networks file: a list of network definitions.
const schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "chain_id", "rpc_url", "contract"],
    "properties": {
      "name":        {"type": "string", "minLength": 1},
      "chain_id":    {"type": "integer", "minimum": 1},
      "rpc_url":     {"type": "string", "pattern": "^(https?|wss?)://"},
      "contract":    {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
      "explorer_tx": {"type": "string"}
    },
    "additionalProperties": false
  }
}`

// builtin is the set of networks shipped with the client.
var builtin = []Network{
	{
		Name:       "ethereum",
		ChainID:    1,
		RPCURL:     "https://ethereum-rpc.publicnode.com",
		Contract:   "0x73eF7A3643aCbC3D616Bd5f7Ee5153Aa5f14DB30",
		ExplorerTx: "https://etherscan.io/tx/%s",
	},
	{
		Name:       "polygon",
		ChainID:    137,
		RPCURL:     "https://polygon-rpc.com",
		Contract:   "0x4dB08d5d0e2C86cCa9Ae6f7546c4a2dfB2d76fC2",
		ExplorerTx: "https://polygonscan.com/tx/%s",
	},
	{
		Name:       "sepolia",
		ChainID:    11155111,
		RPCURL:     "https://ethereum-sepolia-rpc.publicnode.com",
		Contract:   "0xF6656646ECf7bD4100ec0014163F6CaD44eA1715",
		ExplorerTx: "https://sepolia.etherscan.io/tx/%s",
	},
}

// Registry resolves network names to definitions. Names are matched
// case-insensitively: the map is keyed by the lowercased name.
type Registry struct {
	byName map[string]Network
}

// Builtin returns a registry holding only the built-in networks.
func Builtin() *Registry {
	r := &Registry{byName: make(map[string]Network, len(builtin))}
	for _, n := range builtin {
		r.byName[strings.ToLower(n.Name)] = n
	}
	return r
}

// Load returns the built-in registry extended by the networks file at path.
// User entries override built-ins with the same name. An empty path returns
// just the built-ins.
func Load(path string) (*Registry, error) {
	r := Builtin()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}

	nets, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("networks file %s: %w", path, err)
	}

	for _, n := range nets {
		r.byName[strings.ToLower(n.Name)] = n
	}
	return r, nil
}

// Parse validates raw JSON against the networks schema and decodes it.
func Parse(data []byte) ([]Network, error) {
	compiled, err := jsonschema.CompileString("networks.schema.json", schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if err := compiled.Validate(instance); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	var nets []Network
	if err := json.Unmarshal(data, &nets); err != nil {
		return nil, fmt.Errorf("decode networks: %w", err)
	}
	return nets, nil
}

// Get resolves a network by name (case-insensitive).
func (r *Registry) Get(name string) (Network, error) {
	n, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return n, nil
}

// Names returns all defined network names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all defined networks, sorted by name.
func (r *Registry) All() []Network {
	nets := make([]Network, 0, len(r.byName))
	for _, name := range r.Names() {
		nets = append(nets, r.byName[name])
	}
	return nets
}
