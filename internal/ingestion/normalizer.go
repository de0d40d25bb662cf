package ingestion

import (
	"strings"
	"unicode"

	"github.com/rpattn/drillops/internal/domain"
)

// Field is a canonical column the pipeline understands regardless of the
// literal header text in the upload.
type Field string

const (
	FieldDate          Field = "date"
	FieldRig           Field = "rig"
	FieldSite          Field = "site"
	FieldShift         Field = "shift"
	FieldMetersDrilled Field = "meters_drilled"

	FieldShiftHours         Field = "shift_hours"
	FieldProject            Field = "project"
	FieldHoleID             Field = "hole_id"
	FieldDepthFrom          Field = "depth_from"
	FieldDepthTo            Field = "depth_to"
	FieldMechanicalDowntime Field = "mechanical_downtime"
	FieldElectricalDowntime Field = "electrical_downtime"
	FieldWeatherDowntime    Field = "weather_downtime"
	FieldStandbyHours       Field = "standby_hours"
	FieldOtherDowntime      Field = "other_downtime"
	FieldBitsUsed           Field = "bits_used"
	FieldWaterUsed          Field = "water_used"
	FieldFuelConsumed       Field = "fuel_consumed"
	FieldCost               Field = "cost"
	FieldOperator           Field = "operator"
	FieldNotes              Field = "notes"
)

// MandatoryFields must all be present in an upload's header row.
var MandatoryFields = []Field{FieldDate, FieldRig, FieldSite, FieldShift, FieldMetersDrilled}

// Label is the operator-facing name of the field.
func (f Field) Label() string {
	return strings.ReplaceAll(string(f), "_", " ")
}

// hasWord reports whether word appears in header as a whole token, so "unit"
// matches "Drill Unit" but not "Fuel (units)".
func hasWord(header, word string) bool {
	tokens := strings.FieldsFunc(header, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, token := range tokens {
		if token == word {
			return true
		}
	}
	return false
}

type headerRule struct {
	field Field
	match func(header string) bool
}

func containsAny(header string, words ...string) bool {
	for _, word := range words {
		if strings.Contains(header, word) {
			return true
		}
	}
	return false
}

// headerRules is evaluated top to bottom and the first match wins. Narrow rules
// sit above the looser ones that would also claim their headers.
var headerRules = []headerRule{
	{FieldShiftHours, func(h string) bool { return strings.Contains(h, "shift") && containsAny(h, "hour", "hrs", "duration") }},
	{FieldShift, func(h string) bool { return strings.Contains(h, "shift") }},
	{FieldDate, func(h string) bool { return strings.Contains(h, "date") }},
	{FieldDepthFrom, func(h string) bool { return strings.Contains(h, "from") }},
	{FieldDepthTo, func(h string) bool { return h == "to" || containsAny(h, "depth to", "to depth", "to (m)", "end depth") }},
	{FieldMetersDrilled, func(h string) bool { return containsAny(h, "meter", "metre", "footage", "drilled", "production") }},
	{FieldFuelConsumed, func(h string) bool { return containsAny(h, "fuel", "diesel") }},
	{FieldCost, func(h string) bool { return strings.Contains(h, "cost") }},
	{FieldNotes, func(h string) bool { return containsAny(h, "note", "comment", "remark") }},
	{FieldRig, func(h string) bool { return containsAny(h, "rig", "equipment") || hasWord(h, "unit") }},
	{FieldProject, func(h string) bool { return strings.Contains(h, "project") }},
	{FieldSite, func(h string) bool { return containsAny(h, "site", "location") }},
	{FieldHoleID, func(h string) bool { return strings.Contains(h, "hole") }},
	{FieldMechanicalDowntime, func(h string) bool { return strings.Contains(h, "mechanical") }},
	{FieldElectricalDowntime, func(h string) bool { return strings.Contains(h, "electrical") }},
	{FieldWeatherDowntime, func(h string) bool { return strings.Contains(h, "weather") }},
	{FieldStandbyHours, func(h string) bool { return containsAny(h, "standby", "stand-by", "stand by") }},
	{FieldOtherDowntime, func(h string) bool { return containsAny(h, "downtime", "delay") }},
	{FieldBitsUsed, func(h string) bool { return strings.Contains(h, "bit") }},
	{FieldWaterUsed, func(h string) bool { return strings.Contains(h, "water") }},
	{FieldOperator, func(h string) bool { return containsAny(h, "operator", "driller", "crew") }},
}

// NormalizeHeader maps a free-form header onto a canonical field.
func NormalizeHeader(header string) (Field, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" {
		return "", false
	}
	for _, rule := range headerRules {
		if rule.match(h) {
			return rule.field, true
		}
	}
	return "", false
}

// Normalize re-keys a raw row by canonical field. Columns are scanned in source
// order so a later column mapping to the same field replaces an earlier one.
// Unmatched columns are dropped; blank cells stay as "".
func Normalize(payload domain.RawPayload) map[Field]string {
	out := make(map[Field]string, len(payload))
	for _, cell := range payload {
		field, ok := NormalizeHeader(cell.Header)
		if !ok {
			continue
		}
		out[field] = cell.Value
	}
	return out
}

// MissingMandatory lists the mandatory fields no header maps to, in declaration order.
func MissingMandatory(headers []string) []Field {
	present := make(map[Field]bool, len(headers))
	for _, header := range headers {
		if field, ok := NormalizeHeader(header); ok {
			present[field] = true
		}
	}

	var missing []Field
	for _, field := range MandatoryFields {
		if !present[field] {
			missing = append(missing, field)
		}
	}
	return missing
}
