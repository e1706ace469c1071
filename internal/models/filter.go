package models

// DeviceFilter selects devices along at most one dimension of the
// manufacturer → distributor → consumer hierarchy. The zero value matches
// all devices. The storage layer only supports single-dimension lookups, so
// a filter with more than one id populated is rejected before any query runs.
type DeviceFilter struct {
	ManufacturerID string `json:"manufacturer_id,omitempty"`
	DistributorID  string `json:"distributor_id,omitempty"`
	ConsumerID     string `json:"consumer_id,omitempty"`
}

// FilterNone matches every device.
var FilterNone = DeviceFilter{}

// ByManufacturer returns a filter scoped to one manufacturer.
func ByManufacturer(id string) DeviceFilter { return DeviceFilter{ManufacturerID: id} }

// ByDistributor returns a filter scoped to one distributor.
func ByDistributor(id string) DeviceFilter { return DeviceFilter{DistributorID: id} }

// ByConsumer returns a filter scoped to one consumer.
func ByConsumer(id string) DeviceFilter { return DeviceFilter{ConsumerID: id} }

// Dimensions counts how many ids are populated.
func (f DeviceFilter) Dimensions() int {
	n := 0
	if f.ManufacturerID != "" {
		n++
	}
	if f.DistributorID != "" {
		n++
	}
	if f.ConsumerID != "" {
		n++
	}
	return n
}

// IsNone reports whether the filter matches all devices.
func (f DeviceFilter) IsNone() bool {
	return f.Dimensions() == 0
}

// Validate rejects multi-dimension filters.
func (f DeviceFilter) Validate() error {
	if f.Dimensions() > 1 {
		return ErrInvalidFilter
	}
	return nil
}

// FirstRecognized collapses a possibly multi-dimension filter to its highest
// precedence dimension: manufacturer, then distributor, then consumer. Used
// for admin query parameters, where the API fails closed by honoring only the
// first recognized one.
func (f DeviceFilter) FirstRecognized() DeviceFilter {
	switch {
	case f.ManufacturerID != "":
		return ByManufacturer(f.ManufacturerID)
	case f.DistributorID != "":
		return ByDistributor(f.DistributorID)
	case f.ConsumerID != "":
		return ByConsumer(f.ConsumerID)
	default:
		return FilterNone
	}
}
