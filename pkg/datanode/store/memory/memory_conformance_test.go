package memory_test

import (
	"testing"

	"github.com/marmos91/dittomds/pkg/datanode/store"
	"github.com/marmos91/dittomds/pkg/datanode/store/memory"
	"github.com/marmos91/dittomds/pkg/datanode/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.ReplicaStore {
		return memory.New()
	})
}
