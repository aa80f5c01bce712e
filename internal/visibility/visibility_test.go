package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"teamsync/internal/model"
)

func inst(id string, users, tags []string) model.Instance {
	ev := model.Event{ID: id, TaggedUserIDs: users, Tags: tags}
	return model.Instance{Ref: model.InstanceRef{SeriesID: id, Date: "2024-01-01"}, Event: ev}
}

func ids(in []model.Instance) []string {
	out := []string{}
	for _, i := range in {
		out = append(out, i.Ref.SeriesID)
	}
	return out
}

var (
	admin  = model.User{ID: "admin-1", Role: model.RoleAdmin}
	jane   = model.User{ID: "user-1", Role: model.RoleUser}
	sample = []model.Instance{
		inst("a", []string{"user-1"}, []string{"Ops"}),
		inst("b", []string{"user-2"}, []string{"Design"}),
		inst("c", []string{"user-1", "user-2"}, nil),
		inst("d", nil, []string{"Ops", "Design"}),
	}
)

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		viewer model.User
		tags   []string
		users  []string
		want   []string
	}{
		{"admin sees all", admin, nil, nil, []string{"a", "b", "c", "d"}},
		{"member sees tagged only", jane, nil, nil, []string{"a", "c"}},
		{"tag filter", admin, []string{"Ops"}, nil, []string{"a", "d"}},
		{"user filter", admin, nil, []string{"user-2"}, []string{"b", "c"}},
		{"filters combine", admin, []string{"Design"}, []string{"user-2"}, []string{"b"}},
		{"member and tag", jane, []string{"Ops"}, nil, []string{"a"}},
		{"member cannot widen with user filter", jane, nil, []string{"user-2"}, []string{"c"}},
		{"no match", admin, []string{"Nope"}, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(sample, tt.viewer, tt.tags, tt.users)))
		})
	}
}

func TestEmptyFiltersAreNoOp(t *testing.T) {
	assert.Equal(t, Filter(sample, admin, nil, nil), Filter(sample, admin, []string{}, []string{}))
}

func TestSeries(t *testing.T) {
	events := []model.Event{sample[0].Event, sample[1].Event}
	assert.Len(t, Series(events, admin), 2)
	got := Series(events, jane)
	assert.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.False(t, CanSee(sample[3].Event, jane))
}
