package xid

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

var settlementNamespace = uuid.MustParse("6f1c2a7e-3b9d-4f52-9a51-2d8c7b0e4a13")

func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// SettlementKey derives a stable idempotency key for a settlement of the given
// pending orders. The order of ids does not matter.
func SettlementKey(venueID string, orderIDs []string) string {
	ids := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return "settle-" + uuid.NewSHA1(settlementNamespace, []byte(venueID+"|"+strings.Join(ids, ","))).String()
}
