package solana

// Cluster endpoints addressable by name.
var clusterURLs = map[string]string{
	"devnet":       "https://api.devnet.solana.com",
	"testnet":      "https://api.testnet.solana.com",
	"mainnet-beta": "https://api.mainnet-beta.solana.com",
}

// ClusterURL resolves a cluster name to its public RPC endpoint. Anything else is
// taken as an RPC URL.
func ClusterURL(network string) string {
	if url, ok := clusterURLs[network]; ok {
		return url
	}
	return network
}
