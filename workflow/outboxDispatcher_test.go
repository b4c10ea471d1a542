package workflow

import (
	"testing"
	"time"
)

func TestBackoffFor_DoublesAndCaps(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 80 * time.Second},
		{7, 320 * time.Second},
		{8, 10 * time.Minute},
		{20, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := d.backoffFor(tc.attempt); got != tc.want {
			t.Errorf("backoffFor(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
