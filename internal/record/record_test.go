package record

import (
	"errors"
	"strings"
	"testing"
)

// line builds a raw source line with the given overrides.
func line(overrides map[Field]string) []string {
	fields := []string{
		"30075445", "MORRIS PARK BAKE SHOP", "BRONX", "1007", "MORRIS PARK AVE",
		"10462", "7188924968", "Bakery", "02/09/2021", "Violations were cited in the following area(s).",
		"10F", "Non-food contact surface improperly constructed.", "N", "13", "A",
		"02/09/2021", "10/17/2026", "Cycle Inspection / Initial Inspection",
	}
	for f, v := range overrides {
		fields[f] = v
	}
	return fields
}

func TestParse(t *testing.T) {
	rec, err := Parse(line(nil))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	checks := map[Field]string{
		Camis:          "30075445",
		InspectionDate: "2021/02/09",
		GradeDate:      "2021/02/09",
		RecordDate:     "2026/10/17",
		Grade:          "A",
		ViolationCode:  "10F",
		InspectionType: "Cycle Inspection / Initial Inspection",
	}
	for f, want := range checks {
		if got := rec.Get(f); got != want {
			t.Errorf("%s = %q, want %q", f, got, want)
		}
	}
	if rec.Camis() != "30075445" || rec.InspectionDate() != "2021/02/09" {
		t.Errorf("accessors returned %q, %q", rec.Camis(), rec.InspectionDate())
	}
	if rec.Get(DBA) != "MORRIS PARK BAKE SHOP" {
		t.Errorf("dba = %q", rec.Get(DBA))
	}
}

func TestParse_FieldCount(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"seventeen", 17},
		{"nineteen", 19},
		{"empty", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := make([]string, tt.n)
			_, err := Parse(fields)
			if !errors.Is(err, ErrSchemaMismatch) {
				t.Fatalf("Parse(%d fields) error = %v, want ErrSchemaMismatch", tt.n, err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *ParseError", err)
			}
		})
	}
}

func TestParse_BadDateNamesField(t *testing.T) {
	_, err := Parse(line(map[Field]string{GradeDate: "2021-02-09"}))
	if !errors.Is(err, ErrCleaningAmbiguity) {
		t.Fatalf("error = %v, want ErrCleaningAmbiguity", err)
	}
	if !strings.Contains(err.Error(), "grade_date") {
		t.Errorf("error should mention grade_date: %v", err)
	}
}

func TestParse_EmptyOptionalFields(t *testing.T) {
	rec, err := Parse(line(map[Field]string{
		InspectionDate: "",
		GradeDate:      " ",
		Score:          "",
		Grade:          "",
		ViolationCode:  "",
	}))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.InspectionDate() != "" || rec.Get(GradeDate) != "" || rec.Get(Score) != "" {
		t.Errorf("empty fields should stay empty: %v", rec)
	}
	if rec.Grade() != GradeUnknown {
		t.Errorf("Grade = %q, want %q", rec.Grade(), GradeUnknown)
	}
}

func TestParseLine(t *testing.T) {
	raw := `41000000,"JOE'S, INC",MANHATTAN,1,BROADWAY,10004,2125550000,American,03/05/2021,,,,,,Z,,03/06/2021,`
	rec, err := ParseLine(raw)
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	if rec.Get(DBA) != "JOE'S, INC" {
		t.Errorf("DBA = %q, want quoted comma preserved", rec.Get(DBA))
	}
	if rec.Grade() != GradePending {
		t.Errorf("Grade = %q, want %q", rec.Grade(), GradePending)
	}

	_, err = ParseLine("1,2,3")
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("ParseLine(short) error = %v, want ErrSchemaMismatch", err)
	}
}
