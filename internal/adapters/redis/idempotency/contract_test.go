package idempotency

import (
	"testing"

	"github.com/jasonsutter87/veilforms-api/internal/adapters/contracttest"
	"github.com/jasonsutter87/veilforms-api/internal/adapters/redis/testutil"
	idempotencyport "github.com/jasonsutter87/veilforms-api/internal/ports/out/idempotency"
)

func TestContract_RedisIdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		_, client := testutil.NewClient(t)
		return NewStore(client, "test"), nil
	})
}
