package formrepo

import (
	"testing"

	"github.com/jasonsutter87/veilforms-api/internal/adapters/contracttest"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	formrepoport "github.com/jasonsutter87/veilforms-api/internal/ports/out/formrepo"
)

func TestContract_FormRepo(t *testing.T) {
	contracttest.RunFormRepo(t, func(t *testing.T, seed []domain.Form) (formrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(seed...), nil
	})
}
