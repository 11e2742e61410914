package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"payment-relay/pkg/types"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		amount float64
		want   types.Status
	}{
		{0, types.StatusApproved},
		{0.01, types.StatusApproved},
		{42.50, types.StatusApproved},
		{99.99, types.StatusApproved},
		{100.00, types.StatusRejected},
		{100.01, types.StatusRejected},
		{150.00, types.StatusRejected},
		{99999999.99, types.StatusRejected},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.amount), "amount %.2f", tt.amount)
	}
}

func TestDecideSweep(t *testing.T) {
	for cents := 0; cents <= 20000; cents++ {
		amount := float64(cents) / 100
		want := types.StatusApproved
		if cents >= 10000 {
			want = types.StatusRejected
		}
		if got := Decide(amount); got != want {
			t.Fatalf("Decide(%.2f) = %s, want %s", amount, got, want)
		}
	}
}
