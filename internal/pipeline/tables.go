package pipeline

import (
	"github.com/JonMunkholm/dohpipeline/internal/config"
	"github.com/JonMunkholm/dohpipeline/internal/loader"
)

// Destination tables, in load order.
const (
	TableRestaurant = "restaurant"
	TableInspection = "inspection"
	TableViolation  = "violation"
)

// Tables returns the loader configuration of every destination table.
// Column order matches the Row methods of the normalize entities.
func Tables(cfg config.PipelineConfig) []loader.Config {
	return []loader.Config{
		{
			Table:           TableRestaurant,
			Columns:         []string{"camis", "dba", "boro", "building", "street", "zipcode", "phone", "cuisine", "last_inspection_date"},
			ConflictColumns: []string{"camis"},
			BatchSize:       cfg.RestaurantBatchSize,
			Upsert:          true,
			UpsertColumns:   []string{"dba", "boro", "building", "street", "zipcode", "phone", "cuisine", "last_inspection_date"},
		},
		{
			Table:     TableInspection,
			Columns:   []string{"camis", "inspection_date", "action", "score", "grade", "grade_date", "inspection_type"},
			BatchSize: cfg.InspectionBatchSize,
		},
		{
			Table:     TableViolation,
			Columns:   []string{"camis", "inspection_date", "violation_code", "violation_description", "critical_flag"},
			BatchSize: cfg.ViolationBatchSize,
		},
	}
}

// streamFile is the intermediate file holding a table's rows.
func streamFile(table string) string { return table + ".tsv" }
