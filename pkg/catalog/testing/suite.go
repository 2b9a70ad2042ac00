// Package testing provides a conformance suite for catalog.Store
// implementations.
package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/mythfs/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the catalog.Store contract, not implementation
// details, so it can run against every store.
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func() catalog.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("AddLocation_AssignsID", suite.TestAddLocation_AssignsID)
	test.Run("AddLocation_Invalid", suite.TestAddLocation_Invalid)
	test.Run("ListLocations_Empty", suite.TestListLocations_Empty)
	test.Run("ListLocations_Order", suite.TestListLocations_Order)
	test.Run("ListLocations_Group", suite.TestListLocations_Group)
	test.Run("RemoveLocation", suite.TestRemoveLocation)
	test.Run("RemoveLocation_NotFound", suite.TestRemoveLocation_NotFound)
	test.Run("HostnameForIP", suite.TestHostnameForIP)
	test.Run("HostnameForIP_Reassigned", suite.TestHostnameForIP_Reassigned)
}

func (suite *StoreTestSuite) newStore(test *testing.T) catalog.Store {
	store := suite.NewStore()
	test.Cleanup(func() { _ = store.Close() })
	return store
}

func addAll(test *testing.T, store catalog.Store, locs ...catalog.Location) []catalog.Location {
	test.Helper()
	out := make([]catalog.Location, 0, len(locs))
	for _, loc := range locs {
		added, err := store.AddLocation(context.Background(), loc)
		require.NoError(test, err)
		out = append(out, added)
	}
	return out
}

func (suite *StoreTestSuite) TestAddLocation_AssignsID(test *testing.T) {
	store := suite.newStore(test)

	added := addAll(test, store,
		catalog.Location{Group: "Default", Host: "alpha", Directory: "/a"},
		catalog.Location{Group: "Default", Host: "alpha", Directory: "/b"},
	)

	assert.NotEmpty(test, added[0].ID)
	assert.NotEqual(test, added[0].ID, added[1].ID)
	assert.Equal(test, "/a", added[0].Directory)
}

func (suite *StoreTestSuite) TestAddLocation_Invalid(test *testing.T) {
	store := suite.newStore(test)

	tests := []struct {
		name string
		loc  catalog.Location
	}{
		{"missing_group", catalog.Location{Host: "alpha", Directory: "/a"}},
		{"missing_host", catalog.Location{Group: "Default", Directory: "/a"}},
		{"missing_directory", catalog.Location{Group: "Default", Host: "alpha"}},
	}

	for _, tt := range tests {
		test.Run(tt.name, func(t *testing.T) {
			_, err := store.AddLocation(context.Background(), tt.loc)
			assert.Error(t, err)
		})
	}
}

func (suite *StoreTestSuite) TestListLocations_Empty(test *testing.T) {
	store := suite.newStore(test)

	locs, err := store.ListLocations(context.Background(), "")
	require.NoError(test, err)
	assert.Empty(test, locs)
}

func (suite *StoreTestSuite) TestListLocations_Order(test *testing.T) {
	store := suite.newStore(test)

	dirs := []string{"/z", "/a", "/m", "/b", "/y", "/c", "/x", "/d", "/w", "/e", "/v", "/f"}
	for _, dir := range dirs {
		addAll(test, store, catalog.Location{Group: "Default", Host: "alpha", Directory: dir})
	}

	locs, err := store.ListLocations(context.Background(), "")
	require.NoError(test, err)
	require.Len(test, locs, len(dirs))
	for i, loc := range locs {
		assert.Equal(test, dirs[i], loc.Directory)
	}
}

func (suite *StoreTestSuite) TestListLocations_Group(test *testing.T) {
	store := suite.newStore(test)

	addAll(test, store,
		catalog.Location{Group: "Default", Host: "alpha", Directory: "/rec1"},
		catalog.Location{Group: "Videos", Host: "alpha", Directory: "/videos"},
		catalog.Location{Group: "Default", Host: "beta", Directory: "/rec2"},
	)

	locs, err := store.ListLocations(context.Background(), "Default")
	require.NoError(test, err)
	require.Len(test, locs, 2)
	assert.Equal(test, "/rec1", locs[0].Directory)
	assert.Equal(test, "/rec2", locs[1].Directory)

	locs, err = store.ListLocations(context.Background(), "Missing")
	require.NoError(test, err)
	assert.Empty(test, locs)

	all, err := store.ListLocations(context.Background(), "")
	require.NoError(test, err)
	assert.Equal(test, []string{"Default", "Videos"}, catalog.Groups(all))
}

func (suite *StoreTestSuite) TestRemoveLocation(test *testing.T) {
	store := suite.newStore(test)

	added := addAll(test, store,
		catalog.Location{Group: "Default", Host: "alpha", Directory: "/a"},
		catalog.Location{Group: "Default", Host: "alpha", Directory: "/b"},
	)

	require.NoError(test, store.RemoveLocation(context.Background(), added[0].ID))

	locs, err := store.ListLocations(context.Background(), "")
	require.NoError(test, err)
	require.Len(test, locs, 1)
	assert.Equal(test, added[1].ID, locs[0].ID)
}

func (suite *StoreTestSuite) TestRemoveLocation_NotFound(test *testing.T) {
	store := suite.newStore(test)

	err := store.RemoveLocation(context.Background(), "does-not-exist")
	assert.True(test, errors.Is(err, catalog.ErrNotFound))
}

func (suite *StoreTestSuite) TestHostnameForIP(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	require.NoError(test, store.SetHostIP(ctx, "alpha", "192.168.1.10"))
	require.NoError(test, store.SetHostIP(ctx, "beta", "192.168.1.11"))

	host, err := store.HostnameForIP(ctx, "192.168.1.11")
	require.NoError(test, err)
	assert.Equal(test, "beta", host)

	_, err = store.HostnameForIP(ctx, "10.0.0.1")
	assert.True(test, errors.Is(err, catalog.ErrNotFound))
}

func (suite *StoreTestSuite) TestHostnameForIP_Reassigned(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	require.NoError(test, store.SetHostIP(ctx, "alpha", "192.168.1.10"))
	require.NoError(test, store.SetHostIP(ctx, "alpha", "192.168.1.20"))

	host, err := store.HostnameForIP(ctx, "192.168.1.20")
	require.NoError(test, err)
	assert.Equal(test, "alpha", host)

	_, err = store.HostnameForIP(ctx, "192.168.1.10")
	assert.True(test, errors.Is(err, catalog.ErrNotFound))
}
