package model

// Period tags a slot with its part of the day.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

func (p Period) Valid() bool {
	return p == PeriodMorning || p == PeriodAfternoon || p == PeriodEvening
}

// TimeSlotDefinition is one bookable window of a day.
type TimeSlotDefinition struct {
	TimeRange   string  `json:"time"`         // "08:00-09:00", unique key
	DisplayTime string  `json:"display_time"` // "8:00 AM - 9:00 AM"
	Rate        float64 `json:"rate"`
	Period      Period  `json:"period"`
	Active      bool    `json:"active"`
}

// AvailableSlot is a catalog slot annotated with availability for a date.
type AvailableSlot struct {
	TimeRange   string  `json:"time"`
	DisplayTime string  `json:"displayTime"`
	Rate        float64 `json:"rate"`
	Period      Period  `json:"period"`
	Available   bool    `json:"available"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalBookings   int     `json:"totalBookings"`
	TodayBookings   int     `json:"todayBookings"`
	TotalRevenue    float64 `json:"totalRevenue"`
	PendingBookings int     `json:"pendingBookings"`
}
