// Package visibility decides which events a viewer may see.
package visibility

import "teamsync/internal/model"

// CanSee applies the role rule: admins see every event, members only the
// events they are tagged on.
func CanSee(ev model.Event, viewer model.User) bool {
	if viewer.IsAdmin() {
		return true
	}
	return contains(ev.TaggedUserIDs, viewer.ID)
}

// Filter returns the instances visible to viewer that also pass the tag
// and user filters. An empty filter imposes no restriction; non-empty
// filters require at least one common element and are AND-combined.
func Filter(instances []model.Instance, viewer model.User, tagFilter, userFilter []string) []model.Instance {
	out := make([]model.Instance, 0, len(instances))
	for _, in := range instances {
		if Match(in.Event, viewer, tagFilter, userFilter) {
			out = append(out, in)
		}
	}
	return out
}

// Match is the per-event predicate behind Filter.
func Match(ev model.Event, viewer model.User, tagFilter, userFilter []string) bool {
	if !CanSee(ev, viewer) {
		return false
	}
	if len(tagFilter) > 0 && !intersects(ev.Tags, tagFilter) {
		return false
	}
	if len(userFilter) > 0 && !intersects(ev.TaggedUserIDs, userFilter) {
		return false
	}
	return true
}

// Series returns the stored series visible to viewer.
func Series(events []model.Event, viewer model.User) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if CanSee(ev, viewer) {
			out = append(out, ev)
		}
	}
	return out
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
