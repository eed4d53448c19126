package service

import (
	"context"
	"testing"

	"takeoff-engine/internal/takeoff/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func netValue(v float64) *float64 { return &v }

func buildProjectStore() *fakeStore {
	store := newFakeStore()
	store.projects["p1"] = &models.Project{ID: "p1", Name: "Warehouse", ProfitMargin: 10}

	store.addCondition(models.Condition{
		ID: "drywall", ProjectID: "p1", Name: "Drywall", Type: models.TypeArea, Unit: "sq ft",
		WasteFactor: 10, MaterialCost: 2, LaborCost: 1, EquipmentCost: 0.5,
	})
	store.addCondition(models.Condition{
		ID: "outlets", ProjectID: "p1", Name: "Outlets", Type: models.TypeCount, Unit: "ea",
	})
	store.addCondition(models.Condition{
		ID: "unused", ProjectID: "p1", Name: "Unused", Type: models.TypeLinear, Unit: "lf",
		MaterialCost: 3,
	})

	// Drywall across two sheets and pages; one measurement carries a net
	// value from cutouts.
	store.addMeasurement(models.Measurement{
		ID: "m1", ProjectID: "p1", SheetID: "s1", ConditionID: "drywall",
		Type: models.TypeArea, CalculatedValue: 10, NetCalculatedValue: netValue(8), PDFPage: 1,
	})
	store.addMeasurement(models.Measurement{
		ID: "m2", ProjectID: "p1", SheetID: "s1", ConditionID: "drywall",
		Type: models.TypeArea, CalculatedValue: 4, PDFPage: 2,
	})
	store.addMeasurement(models.Measurement{
		ID: "m3", ProjectID: "p1", SheetID: "s2", ConditionID: "drywall",
		Type: models.TypeArea, CalculatedValue: 1, PDFPage: 1,
	})

	// Counts sum at aggregation time, one per placed point.
	for _, id := range []string{"m4", "m5", "m6"} {
		store.addMeasurement(models.Measurement{
			ID: id, ProjectID: "p1", SheetID: "s1", ConditionID: "outlets",
			Type: models.TypeCount, CalculatedValue: 1, PDFPage: 1,
		})
	}

	return store
}

func TestAggregateProject(t *testing.T) {
	store := buildProjectStore()
	agg := NewAggregator(store)

	report, err := agg.AggregateProject(context.Background(), "p1")
	require.NoError(t, err)

	// Empty condition excluded from rows but counted in the summary.
	assert.Equal(t, 3, report.TotalConditions)
	assert.Equal(t, 6, report.TotalMeasurements)
	require.Len(t, report.Conditions, 2)

	drywall := report.Conditions[0]
	assert.Equal(t, "drywall", drywall.ConditionID)
	// net ?? gross: 8 + 4 + 1.
	assert.InDelta(t, 13, drywall.Quantity, 1e-9)
	assert.Equal(t, 3, drywall.MeasurementCount)

	// Pages ascending per sheet for deterministic layout.
	require.Len(t, drywall.Pages, 3)
	assert.Equal(t, []models.PageSubtotal{
		{SheetID: "s1", Page: 1, Quantity: 8, Count: 1},
		{SheetID: "s1", Page: 2, Quantity: 4, Count: 1},
		{SheetID: "s2", Page: 1, Quantity: 1, Count: 1},
	}, drywall.Pages)

	outlets := report.Conditions[1]
	assert.InDelta(t, 3, outlets.Quantity, 1e-9)
}

// Page subtotals must add up to the condition total.
func TestAggregateAdditivity(t *testing.T) {
	store := buildProjectStore()
	agg := NewAggregator(store)

	report, err := agg.AggregateProject(context.Background(), "p1")
	require.NoError(t, err)

	for _, cond := range report.Conditions {
		var sum float64
		for _, page := range cond.Pages {
			sum += page.Quantity
		}
		assert.InDelta(t, cond.Quantity, sum, 1e-9, "condition %s", cond.ConditionID)
	}
}

func TestAggregateCosts(t *testing.T) {
	store := buildProjectStore()
	agg := NewAggregator(store)

	report, err := agg.AggregateProject(context.Background(), "p1")
	require.NoError(t, err)

	// Outlets has no rates, unused has no measurements: one cost line.
	require.Len(t, report.Costs.Lines, 1)
	line := report.Costs.Lines[0]

	assert.InDelta(t, 13, line.Quantity, 1e-9)
	assert.InDelta(t, 14.3, line.WasteAdjustedQuantity, 1e-9) // 13 × 1.10
	assert.InDelta(t, 26, line.MaterialTotal, 1e-9)           // 13 × 2
	assert.InDelta(t, 13, line.LaborTotal, 1e-9)              // 13 × 1
	assert.InDelta(t, 6.5, line.EquipmentTotal, 1e-9)         // 13 × 0.5
	assert.InDelta(t, 2.6, line.WasteCost, 1e-9)              // 13 × 10% × 2
	assert.InDelta(t, 48.1, line.Total, 1e-9)

	assert.InDelta(t, 48.1, report.Costs.Subtotal, 1e-9)
	assert.InDelta(t, 10, report.Costs.ProfitMarginPercent, 1e-9)
	assert.InDelta(t, 4.81, report.Costs.ProfitMarginAmount, 1e-9)
	assert.InDelta(t, 52.91, report.Costs.GrandTotal, 1e-9)
}

func TestAggregateMissingProject(t *testing.T) {
	agg := NewAggregator(newFakeStore())
	_, err := agg.AggregateProject(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
