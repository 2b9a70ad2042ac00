package memory

import (
	"context"
	"testing"

	"github.com/marmos91/mythfs/pkg/catalog"
	catalogtesting "github.com/marmos91/mythfs/pkg/catalog/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	suite := &catalogtesting.StoreTestSuite{
		NewStore: func() catalog.Store {
			return NewStore()
		},
	}
	suite.Run(t)
}

func TestNewStoreFromConfig(t *testing.T) {
	store, err := NewStoreFromConfig(context.Background(), Config{
		Locations: []catalog.Location{
			{Group: "Default", Host: "alpha", Directory: "/srv/rec"},
		},
		HostIPs: map[string]string{"alpha": "10.0.0.5"},
	})
	require.NoError(t, err)

	locs, err := store.ListLocations(context.Background(), "Default")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.NotEmpty(t, locs[0].ID)

	host, err := store.HostnameForIP(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "alpha", host)
}

func TestNewStoreFromConfigRejectsIncompleteLocation(t *testing.T) {
	_, err := NewStoreFromConfig(context.Background(), Config{
		Locations: []catalog.Location{{Group: "Default", Host: "alpha"}},
	})
	assert.Error(t, err)
}
