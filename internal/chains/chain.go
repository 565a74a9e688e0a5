// Package chains provides the chain client interface and the registry that
// maps configured network names to their RPC clients.
package chains

import (
	"context"
	"fmt"
)

// Transaction is the subset of a chain transaction the scanner needs. Value is
// a decimal base-unit string so matching is exact string equality, never
// float math.
type Transaction struct {
	Hash  string
	From  string
	To    string
	Value string
}

// Client is a read-only connection to one network's RPC endpoint.
type Client interface {
	// LatestBlockNumber returns the current head height.
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// BlockTransactions returns all transactions in the given block.
	BlockTransactions(ctx context.Context, number uint64) ([]Transaction, error)

	// Call executes a read-only contract call against the latest block.
	Call(ctx context.Context, to string, data []byte) ([]byte, error)

	// CodeAt returns the deployed bytecode at an address, empty for EOAs.
	CodeAt(ctx context.Context, address string) ([]byte, error)

	Close()
}

// Registry holds the clients for all configured networks
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates a new client registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
	}
}

// Register adds a network client to the registry
func (r *Registry) Register(network string, c Client) {
	r.clients[network] = c
}

// Get retrieves a client by network name
func (r *Registry) Get(network string) (Client, error) {
	c, ok := r.clients[network]
	if !ok {
		return nil, fmt.Errorf("no client registered for network %s", network)
	}
	return c, nil
}

// Networks returns the names of all registered networks
func (r *Registry) Networks() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// Close closes all registered clients
func (r *Registry) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}
