package quota

import (
	"testing"

	"github.com/jasonsutter87/veilforms-api/internal/adapters/contracttest"
	quotaport "github.com/jasonsutter87/veilforms-api/internal/ports/out/quota"
)

func TestContract_QuotaCounter(t *testing.T) {
	contracttest.RunQuotaCounter(t, func(t *testing.T) (quotaport.Counter, func()) {
		t.Helper()
		return NewCounter(), nil
	})
}
