package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBooking_FulfillmentStage(t *testing.T) {
	tests := []struct {
		name    string
		booking Booking
		want    FulfillmentStage
	}{
		{"pending", Booking{Status: BookingStatusPending}, StagePending},
		{"expired", Booking{Status: BookingStatusExpired}, StageExpired},
		{"cancelled keeps cancelled even with meeting", Booking{Status: BookingStatusCancelled, MeetingCreated: true}, StageCancelled},
		{"confirmed awaiting pipeline", Booking{Status: BookingStatusConfirmed}, StageConfirmed},
		{"meeting failed", Booking{Status: BookingStatusConfirmed, MeetingError: "provider down"}, StageMeetingFailed},
		{"meeting ok", Booking{Status: BookingStatusConfirmed, MeetingCreated: true}, StageMeetingOK},
		{"notify failed", Booking{Status: BookingStatusConfirmed, MeetingCreated: true, NotificationError: "customer: timeout"}, StageNotifyFailed},
		{"notified", Booking{Status: BookingStatusConfirmed, MeetingCreated: true, NotificationsSent: true}, StageNotified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.booking.FulfillmentStage())
		})
	}
}

func TestBooking_ApplyDefaults(t *testing.T) {
	b := Booking{}
	b.ApplyDefaults()

	assert.Equal(t, DefaultDuration, b.Duration)
	assert.Equal(t, DefaultTimezone, b.Timezone)
	assert.Equal(t, DefaultCurrency, b.Currency)
}

func TestBooking_HoldsSlot(t *testing.T) {
	assert.True(t, (&Booking{Status: BookingStatusPending}).HoldsSlot())
	assert.True(t, (&Booking{Status: BookingStatusConfirmed}).HoldsSlot())
	assert.False(t, (&Booking{Status: BookingStatusExpired}).HoldsSlot())
	assert.False(t, (&Booking{Status: BookingStatusCancelled}).HoldsSlot())
}
