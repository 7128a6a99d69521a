package config

import (
	"encoding/json"
	"hash/fnv"
)

// hashConfig fingerprints the decoded config so a reload can tell a real
// change from an editor touching the file. 0 means "unknown".
func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	h := fnv.New64a()
	if err := json.NewEncoder(h).Encode(cfg); err != nil {
		return 0
	}
	return h.Sum64()
}
