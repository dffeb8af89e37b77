package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateToken returns a random bearer token of the form
// thinkt_live_<yyyymmdd>_<32 hex chars>.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return fmt.Sprintf("thinkt_live_%s_%s", time.Now().UTC().Format("20060102"), hex.EncodeToString(b)), nil
}
