package model

import (
	"fmt"
	"strings"
)

const instanceKeySep = "_"

// InstanceRef identifies one occurrence of a series.
type InstanceRef struct {
	SeriesID string `json:"seriesId"`
	Date     string `json:"date"`
}

// Key renders the display form "{seriesId}_{date}".
func (r InstanceRef) Key() string {
	return r.SeriesID + instanceKeySep + r.Date
}

// ParseInstanceKey recovers the ref from Key's output. The date never
// contains an underscore, so the split is on the last one.
func ParseInstanceKey(key string) (InstanceRef, error) {
	i := strings.LastIndex(key, instanceKeySep)
	if i <= 0 || i == len(key)-1 {
		return InstanceRef{}, fmt.Errorf("instance key %q: missing series or date", key)
	}
	ref := InstanceRef{SeriesID: key[:i], Date: key[i+1:]}
	if !ValidDate(ref.Date) {
		return InstanceRef{}, fmt.Errorf("instance key %q: bad date", key)
	}
	return ref, nil
}

// Instance is one materialized occurrence. Event is a copy of the series
// with Date set to the occurrence date and ID set to Ref.Key(); it is
// never persisted.
type Instance struct {
	Ref   InstanceRef
	Event Event
}
