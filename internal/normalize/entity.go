// Package normalize splits the flat inspection record stream into
// restaurant, inspection and violation entities.
//
// The source is a denormalized join sorted by restaurant identifier and then
// inspection date. Deduplication compares each record only with the one
// before it, so memory stays constant regardless of input size.
package normalize

import "github.com/JonMunkholm/dohpipeline/internal/record"

// Restaurant is one row of the restaurant stream.
type Restaurant struct {
	Camis              string
	Name               string
	Borough            string
	Building           string
	Street             string
	Zipcode            string
	Phone              string
	Cuisine            string
	LastInspectionDate string
}

// Row returns the restaurant in stream column order.
func (r Restaurant) Row() []string {
	return []string{r.Camis, r.Name, r.Borough, r.Building, r.Street, r.Zipcode, r.Phone, r.Cuisine, r.LastInspectionDate}
}

// Inspection is one row of the inspection stream.
type Inspection struct {
	Camis          string
	InspectionDate string
	Action         string
	Score          string
	Grade          string
	GradeDate      string
	InspectionType string
}

// Row returns the inspection in stream column order.
func (i Inspection) Row() []string {
	return []string{i.Camis, i.InspectionDate, i.Action, i.Score, i.Grade, i.GradeDate, i.InspectionType}
}

// Violation is one row of the violation stream. It references its
// inspection by (Camis, InspectionDate).
type Violation struct {
	Camis          string
	InspectionDate string
	Code           string
	Description    string
	CriticalFlag   string
}

// Row returns the violation in stream column order.
func (v Violation) Row() []string {
	return []string{v.Camis, v.InspectionDate, v.Code, v.Description, v.CriticalFlag}
}

// The first record seen for a restaurant carries its most recent inspection
// date because the source is sorted most recent first.
func restaurantFrom(r record.Record) Restaurant {
	return Restaurant{
		Camis:              r.Get(record.Camis),
		Name:               r.Get(record.DBA),
		Borough:            r.Get(record.Boro),
		Building:           r.Get(record.Building),
		Street:             r.Get(record.Street),
		Zipcode:            r.Get(record.Zipcode),
		Phone:              r.Get(record.Phone),
		Cuisine:            r.Get(record.CuisineDescription),
		LastInspectionDate: r.Get(record.InspectionDate),
	}
}

func inspectionFrom(r record.Record) Inspection {
	return Inspection{
		Camis:          r.Get(record.Camis),
		InspectionDate: r.Get(record.InspectionDate),
		Action:         r.Get(record.Action),
		Score:          r.Get(record.Score),
		Grade:          r.Get(record.Grade),
		GradeDate:      r.Get(record.GradeDate),
		InspectionType: r.Get(record.InspectionType),
	}
}

func violationFrom(r record.Record) Violation {
	return Violation{
		Camis:          r.Get(record.Camis),
		InspectionDate: r.Get(record.InspectionDate),
		Code:           r.Get(record.ViolationCode),
		Description:    r.Get(record.ViolationDescription),
		CriticalFlag:   r.Get(record.CriticalFlag),
	}
}

// Emission holds the entities one record newly introduces. Any subset may be nil.
type Emission struct {
	Restaurant *Restaurant
	Inspection *Inspection
	Violation  *Violation
}

// Empty reports whether the record introduced nothing.
func (e Emission) Empty() bool {
	return e.Restaurant == nil && e.Inspection == nil && e.Violation == nil
}
