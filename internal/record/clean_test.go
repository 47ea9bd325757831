package record

import (
	"errors"
	"testing"
)

func TestClean_Grade(t *testing.T) {
	spec := Schema[Grade]
	tests := []struct {
		raw  string
		want string
	}{
		{"", "Unknown"},
		{"   ", "Unknown"},
		{"Z", "Pending"},
		{" Z ", "Pending"},
		{"A", "A"},
		{"B", "B"},
		{"P", "P"},
		{"z", "z"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Clean(spec, tt.raw)
			if err != nil {
				t.Fatalf("Clean(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClean_Date(t *testing.T) {
	spec := Schema[InspectionDate]
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"well formed", "03/05/2021", "2021/03/05", false},
		{"padded", "  03/05/2021 ", "2021/03/05", false},
		{"empty stays empty", "", "", false},
		{"blank stays empty", "  ", "", false},
		{"no calendar validation", "13/45/2021", "2021/13/45", false},
		{"placeholder year", "01/01/1900", "1900/01/01", false},
		{"iso date", "2021-03-05", "", true},
		{"two parts", "03/2021", "", true},
		{"four parts", "03/05/2021/1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(spec, tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrCleaningAmbiguity) {
					t.Fatalf("Clean(%q) error = %v, want ErrCleaningAmbiguity", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Clean(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClean_NumericNotCoerced(t *testing.T) {
	tests := []struct {
		field Field
		raw   string
		want  string
	}{
		{Score, "", ""},
		{Score, " 12 ", "12"},
		{Score, "n/a", "n/a"},
		{Zipcode, "", ""},
		{Camis, " 30075445", "30075445"},
	}

	for _, tt := range tests {
		got, err := Clean(Schema[tt.field], tt.raw)
		if err != nil {
			t.Fatalf("Clean(%s, %q) error = %v", tt.field, tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("Clean(%s, %q) = %q, want %q", tt.field, tt.raw, got, tt.want)
		}
	}
}

func TestClean_GradeSentinelOnlyOnGrade(t *testing.T) {
	got, err := Clean(Schema[Action], "Z")
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if got != "Z" {
		t.Errorf("Clean(action, Z) = %q, want %q", got, "Z")
	}
}

func TestSchemaNames(t *testing.T) {
	if Schema[ViolationCode].Name != "violation_code" {
		t.Errorf("Schema[ViolationCode].Name = %q", Schema[ViolationCode].Name)
	}
	if FieldCount != 18 {
		t.Errorf("FieldCount = %d, want 18", FieldCount)
	}
}
