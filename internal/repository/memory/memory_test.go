package memory

import (
	"testing"

	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/repository/repotest"
)

var _ repository.Store = (*Repository)(nil)

func TestRepository(t *testing.T) {
	repotest.RunStoreSuite(t, func(t *testing.T) repository.Store {
		return NewRepository()
	})
}
