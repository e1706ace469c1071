// Package scope maps a caller identity plus an optional requested filter to
// the single device filter that identity is allowed to execute. It is the
// sole gate between a client-supplied filter and the device store: user and
// distributor identities are always pinned to their own rows no matter what
// they ask for.
package scope

import (
	"fmt"

	"tank-monitor-service/internal/models"
)

// Resolve returns the effective device filter for identity. requested is
// honored for admins only, and only when it names at most one dimension.
// Pure function, no storage access.
func Resolve(identity models.Identity, requested models.DeviceFilter) (models.DeviceFilter, error) {
	if !identity.Valid() {
		return models.DeviceFilter{}, fmt.Errorf("identity missing scope id for role %q", identity.Role)
	}

	switch identity.Role {
	case models.RoleUser:
		// A user only ever sees their own devices.
		return models.ByConsumer(identity.ConsumerID), nil
	case models.RoleDistributor:
		return models.ByDistributor(identity.DistributorID), nil
	case models.RoleAdmin:
		if err := requested.Validate(); err != nil {
			return models.DeviceFilter{}, err
		}
		return requested, nil
	default:
		return models.DeviceFilter{}, fmt.Errorf("unknown role %q", identity.Role)
	}
}

// ResolveParams is Resolve for raw query parameters. Admins supplying several
// filter params get only the first recognized dimension (manufacturer, then
// distributor, then consumer), matching the documented precedence; other
// roles ignore the params entirely.
func ResolveParams(identity models.Identity, manufacturerID, distributorID, consumerID string) (models.DeviceFilter, error) {
	requested := models.DeviceFilter{
		ManufacturerID: manufacturerID,
		DistributorID:  distributorID,
		ConsumerID:     consumerID,
	}.FirstRecognized()
	return Resolve(identity, requested)
}
