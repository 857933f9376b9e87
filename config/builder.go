package config

import (
	"sort"

	"github.com/jpalmerr/feedminer"
)

// BuildNodes converts parsed configuration into SDK Node objects.
func BuildNodes(cfg *Config) ([]feedminer.Node, error) {
	nodes := make([]feedminer.Node, 0, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		n, err := BuildNode(nc)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// BuildNode converts a single NodeConfig to an SDK Node. Unset values keep
// the SDK defaults.
func BuildNode(nc NodeConfig) (feedminer.Node, error) {
	return feedminer.NewNode(nc.Name, nc.URL, NodeOptions(nc)...)
}

// NodeOptions returns the SDK options equivalent to nc.
func NodeOptions(nc NodeConfig) []feedminer.NodeOption {
	var opts []feedminer.NodeOption

	if nc.QueryString != "" {
		opts = append(opts, feedminer.WithQueryString(nc.QueryString))
	}

	if len(nc.Headers) > 0 {
		opts = append(opts, feedminer.WithHeaders(mapToKeyValuePairs(nc.Headers)...))
	}

	if nc.PollingTimeout != 0 {
		opts = append(opts, feedminer.WithTimeout(nc.PollingTimeout.Duration()))
	}

	if nc.VerifyCert != nil {
		opts = append(opts, feedminer.WithVerifyCert(*nc.VerifyCert))
	}

	if nc.Extractor != "" {
		opts = append(opts, feedminer.WithExtractor(nc.Extractor))
	}

	if nc.Indicator != "" {
		opts = append(opts, feedminer.WithIndicator(nc.Indicator))
	}

	if nc.Prefix != nil {
		opts = append(opts, feedminer.WithPrefix(*nc.Prefix))
	}

	// absent and empty whitelists differ
	if nc.Fields != nil {
		opts = append(opts, feedminer.WithFields(nc.Fields...))
	}

	if nc.Username != "" || nc.Password != "" {
		opts = append(opts, feedminer.WithCredentials(nc.Username, nc.Password))
	}

	if nc.ClientCertRequired {
		opts = append(opts, feedminer.WithClientCertRequired(true))
	}

	if nc.CertFile != "" || nc.KeyFile != "" {
		opts = append(opts, feedminer.WithClientCert(nc.CertFile, nc.KeyFile))
	}

	if nc.SideConfig != "" {
		opts = append(opts, feedminer.WithSideConfig(nc.SideConfig))
	}

	if nc.Interval != 0 {
		opts = append(opts, feedminer.WithInterval(nc.Interval.Duration()))
	}

	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
