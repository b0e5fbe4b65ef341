package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed identifier, e.g. "trx-9f1c…". The uuid body
// keeps ids unique across processes; the prefix keeps logs and
// payment-gateway order ids readable.
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return prefix + "-" + strings.ReplaceAll(id.String(), "-", "")
}
