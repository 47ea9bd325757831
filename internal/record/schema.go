// Package record parses raw DOH inspection lines into cleaned records.
//
// The source file is a flat CSV export where every line carries restaurant
// identity, one inspection and at most one violation. Each line must hold
// exactly FieldCount positional fields; each field is cleaned according to
// its FieldSpec before the record is handed to the normalizer.
package record

// FieldType is the declared type of a source column.
// Only FieldDate changes cleaning behavior; FieldInt is never coerced.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInt
	FieldDate
)

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "INT"
	case FieldDate:
		return "DATE"
	default:
		return "VARCHAR"
	}
}

// Field is the position of a column in the source line.
type Field int

const (
	Camis Field = iota
	DBA
	Boro
	Building
	Street
	Zipcode
	Phone
	CuisineDescription
	InspectionDate
	Action
	ViolationCode
	ViolationDescription
	CriticalFlag
	Score
	Grade
	GradeDate
	RecordDate
	InspectionType

	// FieldCount is the exact arity of a source line.
	FieldCount int = iota
)

// String returns the schema name of the field.
func (f Field) String() string {
	if f < 0 || int(f) >= FieldCount {
		return "unknown"
	}
	return Schema[f].Name
}

// FieldSpec defines the cleaning rules for a single source column.
type FieldSpec struct {
	Name       string              // Schema field name
	Type       FieldType           // Declared type
	Default    string              // Substituted when the trimmed value is empty
	Normalizer func(string) string // Optional transformation of non-empty values
}

const (
	// GradeUnknown replaces an empty grade.
	GradeUnknown = "Unknown"
	// GradePending replaces the source's "not yet graded" sentinel.
	GradePending = "Pending"
	// gradePendingSentinel is how the source marks a pending grade.
	gradePendingSentinel = "Z"
)

// Schema lists the source columns in positional order.
var Schema = [FieldCount]FieldSpec{
	Camis:                {Name: "camis", Type: FieldInt},
	DBA:                  {Name: "dba", Type: FieldText},
	Boro:                 {Name: "boro", Type: FieldText},
	Building:             {Name: "building", Type: FieldText},
	Street:               {Name: "street", Type: FieldText},
	Zipcode:              {Name: "zipcode", Type: FieldInt},
	Phone:                {Name: "phone", Type: FieldText},
	CuisineDescription:   {Name: "cuisine_description", Type: FieldText},
	InspectionDate:       {Name: "inspection_date", Type: FieldDate},
	Action:               {Name: "action", Type: FieldText},
	ViolationCode:        {Name: "violation_code", Type: FieldText},
	ViolationDescription: {Name: "violation_description", Type: FieldText},
	CriticalFlag:         {Name: "critical_flag", Type: FieldText},
	Score:                {Name: "score", Type: FieldInt},
	Grade:                {Name: "grade", Type: FieldText, Default: GradeUnknown, Normalizer: normalizeGrade},
	GradeDate:            {Name: "grade_date", Type: FieldDate},
	RecordDate:           {Name: "record_date", Type: FieldDate},
	InspectionType:       {Name: "inspection_type", Type: FieldText},
}

func normalizeGrade(s string) string {
	if s == gradePendingSentinel {
		return GradePending
	}
	return s
}

