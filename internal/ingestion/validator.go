package ingestion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/drillops/internal/domain"

	"github.com/google/uuid"
)

const (
	// excelEpochOffset is the serial of 1970-01-01 in the 1900 date system.
	excelEpochOffset = 25569
	// excelMaxSerial is 9999-12-31.
	excelMaxSerial = 2958465
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"1/2/2006",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"2 January 2006",
}

// Violation is one reason a staged row cannot be committed.
type Violation struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
	// Reference marks an unresolved reference name; those are fixed by an
	// operator in the reference directory rather than in the file.
	Reference bool `json:"reference,omitempty"`
}

// Outcome is the result of validating one staged row.
type Outcome struct {
	StagedRowID int64                  `json:"stagedRowId"`
	RowNumber   int                    `json:"rowNumber"`
	Record      *domain.DrillingRecord `json:"record,omitempty"`
	Violations  []Violation            `json:"violations,omitempty"`
}

func (o Outcome) Valid() bool {
	return len(o.Violations) == 0 && o.Record != nil
}

// OnlyReferenceGaps reports whether every violation is an unresolved reference.
func (o Outcome) OnlyReferenceGaps() bool {
	if len(o.Violations) == 0 {
		return false
	}
	for _, v := range o.Violations {
		if !v.Reference {
			return false
		}
	}
	return true
}

func (o Outcome) Reasons() []string {
	reasons := make([]string, len(o.Violations))
	for i, v := range o.Violations {
		reasons[i] = v.Message
	}
	return reasons
}

// ValidateRow checks one staged row against dir. Every rule runs so the
// outcome lists all violations. Unresolved names are recorded in missing.
func ValidateRow(row domain.StagedRow, dir *Directory, missing *MissingReferences) Outcome {
	fields := Normalize(row.RawPayload)
	outcome := Outcome{StagedRowID: row.ID, RowNumber: row.RowNumber}
	violate := func(field Field, format string, args ...any) {
		outcome.Violations = append(outcome.Violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	record := domain.DrillingRecord{StagedRowID: row.ID, BatchID: row.BatchID}

	if raw := strings.TrimSpace(fields[FieldDate]); raw == "" {
		violate(FieldDate, "date is required")
	} else if date, err := parseDate(raw); err != nil {
		violate(FieldDate, "date %q is not a valid date", raw)
	} else {
		record.Date = date
	}

	resolve := func(field Field, category domain.ReferenceCategory, required bool) (uuid.UUID, bool) {
		name := strings.TrimSpace(fields[field])
		if name == "" {
			if required {
				violate(field, "%s is required", field.Label())
			}
			return uuid.Nil, false
		}
		id, ok := dir.Resolve(category, name)
		if !ok {
			outcome.Violations = append(outcome.Violations, Violation{
				Field:     field,
				Message:   fmt.Sprintf("%s %q does not exist", field.Label(), name),
				Reference: true,
			})
			missing.Add(category, name)
			return uuid.Nil, false
		}
		return id, true
	}

	record.RigID, _ = resolve(FieldRig, domain.ReferenceCategoryRig, true)
	record.SiteID, _ = resolve(FieldSite, domain.ReferenceCategorySite, true)

	if raw := strings.TrimSpace(fields[FieldShift]); raw == "" {
		violate(FieldShift, "shift is required")
	} else if shift, ok := normalizeShift(raw); !ok {
		violate(FieldShift, "shift %q must be %s or %s", raw, domain.ShiftDay, domain.ShiftNight)
	} else {
		record.Shift = shift
	}

	if raw := strings.TrimSpace(fields[FieldMetersDrilled]); raw == "" {
		violate(FieldMetersDrilled, "meters drilled is required")
	} else if meters, err := parseNumber(raw); err != nil {
		violate(FieldMetersDrilled, "meters drilled %q is not a number", raw)
	} else {
		record.MetersDrilled = meters
	}

	if projectID, ok := resolve(FieldProject, domain.ReferenceCategoryProject, false); ok {
		record.ProjectID = &projectID
	}

	record.ShiftHours = numberOrZero(fields[FieldShiftHours])
	record.DepthFrom = numberOrNil(fields[FieldDepthFrom])
	record.DepthTo = numberOrNil(fields[FieldDepthTo])
	record.MechanicalDowntime = numberOrZero(fields[FieldMechanicalDowntime])
	record.ElectricalDowntime = numberOrZero(fields[FieldElectricalDowntime])
	record.WeatherDowntime = numberOrZero(fields[FieldWeatherDowntime])
	record.StandbyHours = numberOrZero(fields[FieldStandbyHours])
	record.OtherDowntime = numberOrZero(fields[FieldOtherDowntime])
	record.BitsUsed = numberOrZero(fields[FieldBitsUsed])
	record.WaterUsed = numberOrZero(fields[FieldWaterUsed])
	record.FuelConsumed = numberOrNil(fields[FieldFuelConsumed])
	record.Cost = numberOrNil(fields[FieldCost])
	record.HoleID = strings.TrimSpace(fields[FieldHoleID])
	record.Operator = strings.TrimSpace(fields[FieldOperator])
	record.Notes = strings.TrimSpace(fields[FieldNotes])

	if len(outcome.Violations) == 0 {
		outcome.Record = &record
	}
	return outcome
}

func normalizeShift(raw string) (string, bool) {
	for _, shift := range []string{domain.ShiftDay, domain.ShiftNight} {
		if strings.EqualFold(raw, shift) {
			return shift, true
		}
	}
	return "", false
}

// parseDate accepts a spreadsheet serial (days since 1899-12-30) or one of
// dateLayouts. The time of day is dropped.
func parseDate(raw string) (time.Time, error) {
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(serial) || serial < 1 || serial > excelMaxSerial {
			return time.Time{}, fmt.Errorf("serial %v out of range", serial)
		}
		days := int64(math.Floor(serial)) - excelEpochOffset
		return time.Unix(days*86400, 0).UTC(), nil
	}

	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// parseNumber accepts any finite number, thousands separators included.
func parseNumber(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty number")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%q is not finite", raw)
	}
	return value, nil
}

func numberOrZero(raw string) float64 {
	value, err := parseNumber(raw)
	if err != nil {
		return 0
	}
	return value
}

func numberOrNil(raw string) *float64 {
	value, err := parseNumber(raw)
	if err != nil {
		return nil
	}
	return &value
}
