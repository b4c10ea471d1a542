package workflow

import "testing"

func TestClampSiblingQty(t *testing.T) {
	cases := []struct {
		name           string
		in             SiblingQty
		sold, remaining int
		want           SiblingQty
	}{
		{
			name:      "capacity shrinks by sold quantity",
			in:        SiblingQty{MaxCapacity: 5, SelectedCapacity: 2, ConsumerDemand: 2},
			sold:      2,
			remaining: 3,
			want:      SiblingQty{MaxCapacity: 3, SelectedCapacity: 2, ConsumerDemand: 2},
		},
		{
			name:      "capacity floors at zero",
			in:        SiblingQty{MaxCapacity: 1, SelectedCapacity: 1, ConsumerDemand: 1},
			sold:      4,
			remaining: 0,
			want:      SiblingQty{MaxCapacity: 0, SelectedCapacity: 0, ConsumerDemand: 0},
		},
		{
			name:      "claims capped at remaining stock",
			in:        SiblingQty{MaxCapacity: 10, SelectedCapacity: 8, ConsumerDemand: 9},
			sold:      3,
			remaining: 5,
			want:      SiblingQty{MaxCapacity: 7, SelectedCapacity: 5, ConsumerDemand: 5},
		},
		{
			name:      "untouched when within bounds",
			in:        SiblingQty{MaxCapacity: 10, SelectedCapacity: 2, ConsumerDemand: 2},
			sold:      0,
			remaining: 10,
			want:      SiblingQty{MaxCapacity: 10, SelectedCapacity: 2, ConsumerDemand: 2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClampSiblingQty(tc.in, tc.sold, tc.remaining)
			if got != tc.want {
				t.Errorf("ClampSiblingQty(%+v, %d, %d) = %+v, want %+v",
					tc.in, tc.sold, tc.remaining, got, tc.want)
			}
		})
	}
}
