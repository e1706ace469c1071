package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tank-monitor-service/internal/models"
)

func TestResolve_UserAlwaysPinnedToOwnConsumer(t *testing.T) {
	identity := models.Identity{Role: models.RoleUser, ConsumerID: "c-7"}

	requested := []models.DeviceFilter{
		models.FilterNone,
		models.ByManufacturer("m-1"),
		models.ByDistributor("d-1"),
		models.ByConsumer("c-999"),
		{ManufacturerID: "m-1", DistributorID: "d-1"},
	}
	for _, req := range requested {
		got, err := Resolve(identity, req)
		require.NoError(t, err)
		assert.Equal(t, models.ByConsumer("c-7"), got)
	}
}

func TestResolve_DistributorAlwaysPinnedToOwnDistributor(t *testing.T) {
	identity := models.Identity{Role: models.RoleDistributor, DistributorID: "d-3"}

	requested := []models.DeviceFilter{
		models.FilterNone,
		models.ByConsumer("c-1"),
		models.ByDistributor("d-999"),
	}
	for _, req := range requested {
		got, err := Resolve(identity, req)
		require.NoError(t, err)
		assert.Equal(t, models.ByDistributor("d-3"), got)
	}
}

func TestResolve_AdminSingleDimensionPassesThrough(t *testing.T) {
	identity := models.Identity{Role: models.RoleAdmin}

	for _, req := range []models.DeviceFilter{
		models.FilterNone,
		models.ByManufacturer("m-1"),
		models.ByDistributor("d-1"),
		models.ByConsumer("c-1"),
	} {
		got, err := Resolve(identity, req)
		require.NoError(t, err)
		assert.Equal(t, req, got)
	}
}

func TestResolve_AdminMultiDimensionRejected(t *testing.T) {
	identity := models.Identity{Role: models.RoleAdmin}

	_, err := Resolve(identity, models.DeviceFilter{
		ManufacturerID: "m1",
		DistributorID:  "d1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidFilter)
}

func TestResolve_IdentityMissingScopeID(t *testing.T) {
	_, err := Resolve(models.Identity{Role: models.RoleUser}, models.FilterNone)
	assert.Error(t, err)

	_, err = Resolve(models.Identity{Role: models.RoleDistributor}, models.FilterNone)
	assert.Error(t, err)
}

func TestResolve_UnknownRole(t *testing.T) {
	_, err := Resolve(models.Identity{Role: "superuser"}, models.FilterNone)
	assert.Error(t, err)
}

func TestResolveParams_AdminPrecedence(t *testing.T) {
	identity := models.Identity{Role: models.RoleAdmin}

	// manufacturer > distributor > consumer, only the first recognized
	// parameter is applied.
	got, err := ResolveParams(identity, "m1", "d1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ByManufacturer("m1"), got)

	got, err = ResolveParams(identity, "", "d1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ByDistributor("d1"), got)

	got, err = ResolveParams(identity, "", "", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ByConsumer("c1"), got)

	got, err = ResolveParams(identity, "", "", "")
	require.NoError(t, err)
	assert.True(t, got.IsNone())
}

func TestResolveParams_ParamsIgnoredForUser(t *testing.T) {
	identity := models.Identity{Role: models.RoleUser, ConsumerID: "c-2"}

	got, err := ResolveParams(identity, "m1", "d1", "c-other")
	require.NoError(t, err)
	assert.Equal(t, models.ByConsumer("c-2"), got)
}
