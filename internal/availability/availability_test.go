package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"spotshare/internal/model"
)

func TestIsBookable(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	base := model.Resource{Status: model.StatusApproved, Available: true, ActiveFrom: &from, ActiveUntil: &until}

	tests := []struct {
		name    string
		mutate  func(r *model.Resource)
		at      time.Time
		wantErr error
	}{
		{"bookable", func(*model.Resource) {}, at, nil},
		{"pending listing", func(r *model.Resource) { r.Status = model.StatusPending }, at, model.ErrNotApproved},
		{"rejected listing", func(r *model.Resource) { r.Status = model.StatusRejected }, at, model.ErrNotApproved},
		{"disabled", func(r *model.Resource) { r.Available = false }, at, model.ErrDisabled},
		{"before window", func(*model.Resource) {}, from.Add(-time.Second), model.ErrOutOfWindow},
		{"after window", func(*model.Resource) {}, until.Add(time.Second), model.ErrOutOfWindow},
		{"window start inclusive", func(*model.Resource) {}, from, nil},
		{"no window", func(r *model.Resource) { r.ActiveFrom, r.ActiveUntil = nil, nil }, from.AddDate(5, 0, 0), nil},
		{
			"status checked before flag",
			func(r *model.Resource) { r.Status = model.StatusPending; r.Available = false },
			at, model.ErrNotApproved,
		},
		{
			"flag checked before window",
			func(r *model.Resource) { r.Available = false },
			from.Add(-time.Hour), model.ErrDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base.Clone()
			tt.mutate(&r)
			err := IsBookable(r, tt.at)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
