package submissionrepo

import (
	"testing"

	"github.com/jasonsutter87/veilforms-api/internal/adapters/contracttest"
	submissionrepoport "github.com/jasonsutter87/veilforms-api/internal/ports/out/submissionrepo"
)

func TestContract_SubmissionRepo(t *testing.T) {
	contracttest.RunSubmissionRepo(t, func(t *testing.T) (submissionrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(), nil
	})
}
