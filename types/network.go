package types

import "math/big"

// Network represents a supported EVM network.
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet
	NetworkLocal       Network = "local"        // anvil / simulated backends
)

var networkChainIDs = map[Network]int64{
	NetworkBase:        8453,
	NetworkBaseSepolia: 84532,
	NetworkPolygon:     137,
	NetworkPolygonAmoy: 80002,
	NetworkLocal:       1337,
}

// ChainID returns the EIP-155 chain id of the network, or nil if unknown.
func (n Network) ChainID() *big.Int {
	id, ok := networkChainIDs[n]
	if !ok {
		return nil
	}
	return big.NewInt(id)
}

// IsKnown reports whether the network has a registered chain id.
func (n Network) IsKnown() bool {
	_, ok := networkChainIDs[n]
	return ok
}

// IsTestnet reports whether funds on the network carry no real value.
func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia || n == NetworkPolygonAmoy || n == NetworkLocal
}

func (n Network) String() string {
	return string(n)
}
