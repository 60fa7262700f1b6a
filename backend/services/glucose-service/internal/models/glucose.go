package models

import (
	"encoding/json"
	"time"
)

// DeviceTimeLayout is the JSON layout of device timestamps. Devices report wall-clock
// time without a zone, so none is rendered.
const DeviceTimeLayout = "2006-01-02T15:04:05"

// GlucoseRecord represents one row of a device export owned by a user.
type GlucoseRecord struct {
	ID                    int64     `db:"id" json:"id"`
	UserID                string    `db:"user_id" json:"user_id"`
	Device                string    `db:"device" json:"device"`
	SerialNumber          string    `db:"serial_number" json:"serial_number"`
	DeviceTimestamp       time.Time `db:"device_timestamp" json:"device_timestamp"`
	RecordType            int       `db:"record_type" json:"record_type"`
	GlucoseValueHistory   *int      `db:"glucose_value_history" json:"glucose_value_history"`
	GlucoseScan           *float64  `db:"glucose_scan" json:"glucose_scan"`
	NonNumericFastInsulin *string   `db:"non_numeric_fast_insulin" json:"non_numeric_fast_insulin"`
	FastInsulinUnits      *float64  `db:"fast_insulin_units" json:"fast_insulin_units"`
	NonNumericFood        *string   `db:"non_numeric_food" json:"non_numeric_food"`
	CarbsGrams            *float64  `db:"carbs_grams" json:"carbs_grams"`
	CarbsPortions         *float64  `db:"carbs_portions" json:"carbs_portions"`
	NonNumericLongInsulin *string   `db:"non_numeric_long_insulin" json:"non_numeric_long_insulin"`
	LongInsulinUnits      *float64  `db:"long_insulin_units" json:"long_insulin_units"`
	Notes                 *string   `db:"notes" json:"notes"`
	GlucoseTeststrip      *float64  `db:"glucose_teststrip" json:"glucose_teststrip"`
	Ketone                *float64  `db:"ketone" json:"ketone"`
	MealInsulin           *float64  `db:"meal_insulin" json:"meal_insulin"`
	CorrectionInsulin     *float64  `db:"correction_insulin" json:"correction_insulin"`
	InsulinChangeByUser   *float64  `db:"insulin_change_by_user" json:"insulin_change_by_user"`
}

// MarshalJSON renders DeviceTimestamp with DeviceTimeLayout.
func (r GlucoseRecord) MarshalJSON() ([]byte, error) {
	type plain GlucoseRecord
	return json.Marshal(struct {
		plain
		DeviceTimestamp string `json:"device_timestamp"`
	}{
		plain:           plain(r),
		DeviceTimestamp: r.DeviceTimestamp.Format(DeviceTimeLayout),
	})
}

// UnmarshalJSON accepts the layout produced by MarshalJSON.
func (r *GlucoseRecord) UnmarshalJSON(data []byte) error {
	type plain GlucoseRecord
	aux := struct {
		*plain
		DeviceTimestamp string `json:"device_timestamp"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.DeviceTimestamp == "" {
		r.DeviceTimestamp = time.Time{}
		return nil
	}
	ts, err := time.Parse(DeviceTimeLayout, aux.DeviceTimestamp)
	if err != nil {
		return err
	}
	r.DeviceTimestamp = ts
	return nil
}
