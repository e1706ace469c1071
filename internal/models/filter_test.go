package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceFilter_Dimensions(t *testing.T) {
	assert.Equal(t, 0, FilterNone.Dimensions())
	assert.Equal(t, 1, ByManufacturer("m1").Dimensions())
	assert.Equal(t, 2, DeviceFilter{DistributorID: "d1", ConsumerID: "c1"}.Dimensions())
	assert.Equal(t, 3, DeviceFilter{ManufacturerID: "m1", DistributorID: "d1", ConsumerID: "c1"}.Dimensions())
}

func TestDeviceFilter_Validate(t *testing.T) {
	assert.NoError(t, FilterNone.Validate())
	assert.NoError(t, ByConsumer("c1").Validate())
	assert.ErrorIs(t, DeviceFilter{ManufacturerID: "m1", ConsumerID: "c1"}.Validate(), ErrInvalidFilter)
}

func TestDeviceFilter_FirstRecognized(t *testing.T) {
	full := DeviceFilter{ManufacturerID: "m1", DistributorID: "d1", ConsumerID: "c1"}
	assert.Equal(t, ByManufacturer("m1"), full.FirstRecognized())

	assert.Equal(t, ByDistributor("d1"), DeviceFilter{DistributorID: "d1", ConsumerID: "c1"}.FirstRecognized())
	assert.Equal(t, ByConsumer("c1"), DeviceFilter{ConsumerID: "c1"}.FirstRecognized())
	assert.Equal(t, FilterNone, FilterNone.FirstRecognized())
}

func TestIdentity_Valid(t *testing.T) {
	assert.True(t, Identity{Role: RoleAdmin}.Valid())
	assert.True(t, Identity{Role: RoleUser, ConsumerID: "c1"}.Valid())
	assert.False(t, Identity{Role: RoleUser}.Valid())
	assert.True(t, Identity{Role: RoleDistributor, DistributorID: "d1"}.Valid())
	assert.False(t, Identity{Role: RoleDistributor}.Valid())
	assert.False(t, Identity{Role: "other"}.Valid())
}
