// Package catalog declares the three catalog collections and their field
// classification tables, and wires stores for whichever backend is
// configured.
package catalog

import (
	"fmt"

	"github.com/rpattn/metriq/internal/domain"
)

// Collection names.
const (
	CollectionMetrics    = "metrics"
	CollectionDomains    = "domains"
	CollectionObjectives = "objectives"
)

// Collections lists every catalog collection in a stable order.
func Collections() []string {
	return []string{CollectionMetrics, CollectionDomains, CollectionObjectives}
}

// MetricSchema is the classification table for metric definitions. Fields
// that redefine what the metric measures are major; renames and
// reclassifications of meaning are minor; governance, presentation and
// relationship fields are patch. Declared fields without an explicit
// severity classify as patch.
func MetricSchema() *domain.Schema {
	schema, err := domain.NewSchema(CollectionMetrics, []domain.FieldSpec{
		// definition
		{Name: "formula", Kind: domain.FieldString, Severity: domain.SeverityMajor},
		{Name: "unit", Kind: domain.FieldString, Severity: domain.SeverityMajor},
		{Name: "category", Kind: domain.FieldString, Severity: domain.SeverityMajor},
		{Name: "calculation_window", Kind: domain.FieldString, Severity: domain.SeverityMajor},
		// identity
		{Name: "name", Kind: domain.FieldString, Severity: domain.SeverityMinor},
		{Name: "description", Kind: domain.FieldString, Severity: domain.SeverityMinor},
		{Name: "business_domain", Kind: domain.FieldString, Severity: domain.SeverityMinor},
		{Name: "metric_type", Kind: domain.FieldString, Severity: domain.SeverityMinor},
		// governance
		{Name: "owner", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "steward", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "tier", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "status", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "certified", Kind: domain.FieldBool, Severity: domain.SeverityPatch},
		// presentation
		{Name: "display_format", Kind: domain.FieldString},
		{Name: "decimals", Kind: domain.FieldNumber},
		{Name: "docs_url", Kind: domain.FieldString},
		// relationships
		{Name: "tags", Kind: domain.FieldList, Severity: domain.SeverityPatch},
		{Name: "related_metrics", Kind: domain.FieldList},
		{Name: "objective_ids", Kind: domain.FieldList},
		{Name: "dimensions", Kind: domain.FieldMap},
	})
	if err != nil {
		panic(fmt.Sprintf("metric schema: %v", err))
	}
	return schema
}

// DomainSchema is the classification table for business domains.
func DomainSchema() *domain.Schema {
	schema, err := domain.NewSchema(CollectionDomains, []domain.FieldSpec{
		{Name: "name", Kind: domain.FieldString, Severity: domain.SeverityMinor},
		{Name: "description", Kind: domain.FieldString, Severity: domain.SeverityMinor},
		{Name: "owner", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "status", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "tags", Kind: domain.FieldList, Severity: domain.SeverityPatch},
	})
	if err != nil {
		panic(fmt.Sprintf("domain schema: %v", err))
	}
	return schema
}

// ObjectiveSchema is the classification table for business objectives. The
// target value and its unit define the objective, so they are major.
func ObjectiveSchema() *domain.Schema {
	schema, err := domain.NewSchema(CollectionObjectives, []domain.FieldSpec{
		{Name: "target", Kind: domain.FieldNumber, Severity: domain.SeverityMajor},
		{Name: "unit", Kind: domain.FieldString, Severity: domain.SeverityMajor},
		{Name: "name", Kind: domain.FieldString, Severity: domain.SeverityMinor},
		{Name: "description", Kind: domain.FieldString, Severity: domain.SeverityMinor},
		{Name: "owner", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "status", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "due", Kind: domain.FieldString, Severity: domain.SeverityPatch},
		{Name: "tags", Kind: domain.FieldList, Severity: domain.SeverityPatch},
	})
	if err != nil {
		panic(fmt.Sprintf("objective schema: %v", err))
	}
	return schema
}

// Schemas returns the classification table for every collection.
func Schemas() map[string]*domain.Schema {
	return map[string]*domain.Schema{
		CollectionMetrics:    MetricSchema(),
		CollectionDomains:    DomainSchema(),
		CollectionObjectives: ObjectiveSchema(),
	}
}
