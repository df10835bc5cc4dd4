package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fulfillment-service/internal/constants"
)

func TestMapVendorOrderStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Pending", constants.OrderStatusProcessing},
		{"processing", constants.OrderStatusProcessing},
		{"In progress", constants.OrderStatusInProgress},
		{"INPROGRESS", constants.OrderStatusInProgress},
		{"Completed", constants.OrderStatusCompleted},
		{"Partial", constants.OrderStatusPartial},
		{"Canceled", constants.OrderStatusCancelled},
		{"cancelled", constants.OrderStatusCancelled},
		{" completed ", constants.OrderStatusCompleted},
		{"weird", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapVendorOrderStatus(tt.raw), "raw=%q", tt.raw)
	}
}

func TestMapVendorRefillStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Pending", constants.RefillStatusPending},
		{"In progress", constants.RefillStatusProcessing},
		{"Completed", constants.RefillStatusCompleted},
		{"Rejected", constants.RefillStatusRejected},
		{"error", constants.RefillStatusRejected},
		{"unknown", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapVendorRefillStatus(tt.raw), "raw=%q", tt.raw)
	}
}
