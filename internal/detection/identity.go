package detection

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AlertID is stable across runs for the same (type, entity). Missing entity
// fields hash as empty strings.
func AlertID(alertType AlertType, entity Entity) string {
	tail := entity.Keyword
	if tail == "" {
		tail = entity.URL
	}
	key := strings.Join([]string{
		string(alertType),
		string(entity.Type),
		entity.Product,
		entity.Market,
		entity.Campaign,
		entity.AdGroup,
		tail,
	}, ":")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
