package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// ConfigHash returns a SHA-256 hash of cfg for reproducibility and cache keys.
func ConfigHash(cfg interface{}) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16]) // 32 hex chars
}
