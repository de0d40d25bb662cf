package domain

import (
	"time"

	"github.com/google/uuid"
)

// Shift values accepted on a drilling report.
const (
	ShiftDay   = "Day"
	ShiftNight = "Night"
)

// DrillingRecord is a validated row ready for the operational store. It only
// exists in memory between validation and commit.
type DrillingRecord struct {
	ID          uuid.UUID  `json:"id"`
	StagedRowID int64      `json:"staged_row_id"`
	BatchID     uuid.UUID  `json:"batch_id"`
	Date        time.Time  `json:"date"`
	Shift       string     `json:"shift"`
	RigID       uuid.UUID  `json:"rig_id"`
	SiteID      uuid.UUID  `json:"site_id"`
	ProjectID   *uuid.UUID `json:"project_id,omitempty"`

	MetersDrilled float64 `json:"meters_drilled"`
	ShiftHours    float64 `json:"shift_hours"`

	DepthFrom *float64 `json:"depth_from,omitempty"`
	DepthTo   *float64 `json:"depth_to,omitempty"`

	MechanicalDowntime float64 `json:"mechanical_downtime"`
	ElectricalDowntime float64 `json:"electrical_downtime"`
	WeatherDowntime    float64 `json:"weather_downtime"`
	StandbyHours       float64 `json:"standby_hours"`
	OtherDowntime      float64 `json:"other_downtime"`
	BitsUsed           float64 `json:"bits_used"`
	WaterUsed          float64 `json:"water_used"`

	FuelConsumed *float64 `json:"fuel_consumed,omitempty"`
	Cost         *float64 `json:"cost,omitempty"`

	HoleID   string `json:"hole_id"`
	Operator string `json:"operator"`
	Notes    string `json:"notes"`
}
