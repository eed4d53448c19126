package service

import (
	"context"
	"fmt"
	"sort"

	"takeoff-engine/internal/takeoff/models"
)

// ============================================================
// Quantity Aggregator
// ============================================================

type AggregatorStore interface {
	Project(ctx context.Context, id string) (*models.Project, error)
	ConditionsFor(ctx context.Context, projectID string) ([]models.Condition, error)
	MeasurementsFor(ctx context.Context, projectID string) ([]models.Measurement, error)
}

type Aggregator struct {
	store AggregatorStore
}

func NewAggregator(store AggregatorStore) *Aggregator {
	return &Aggregator{store: store}
}

// AggregateProject строит отчёт проекта: итоги по условиям с drill-down
// по (лист, страница) и смету. Условия идут в порядке создания (их не
// пересортировываем), страницы — по возрастанию номера. Условия без
// измерений в строки не попадают, но учитываются в TotalConditions.
func (a *Aggregator) AggregateProject(ctx context.Context, projectID string) (*models.ProjectReport, error) {
	project, err := a.store.Project(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	conditions, err := a.store.ConditionsFor(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load conditions: %w", err)
	}

	measurements, err := a.store.MeasurementsFor(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load measurements: %w", err)
	}

	byCondition := make(map[string][]models.Measurement)
	for _, m := range measurements {
		byCondition[m.ConditionID] = append(byCondition[m.ConditionID], m)
	}

	report := &models.ProjectReport{
		ProjectID:         projectID,
		TotalConditions:   len(conditions),
		TotalMeasurements: len(measurements),
	}

	for _, cond := range conditions {
		ms := byCondition[cond.ID]
		if len(ms) == 0 {
			continue
		}

		total := conditionTotal(cond, ms)
		report.Conditions = append(report.Conditions, total)

		if cond.HasCosts() {
			report.Costs.Lines = append(report.Costs.Lines, costLine(cond, total.Quantity))
		}
	}

	for _, line := range report.Costs.Lines {
		report.Costs.Subtotal += line.Total
	}
	report.Costs.ProfitMarginPercent = project.ProfitMargin
	report.Costs.ProfitMarginAmount = report.Costs.Subtotal * project.ProfitMargin / 100
	report.Costs.GrandTotal = report.Costs.Subtotal + report.Costs.ProfitMarginAmount

	return report, nil
}

// conditionTotal суммирует net ?? gross по измерениям условия и строит
// постраничные подытоги.
func conditionTotal(cond models.Condition, ms []models.Measurement) models.ConditionTotal {
	type pageKey struct {
		sheetID string
		page    int
	}

	total := models.ConditionTotal{
		ConditionID:      cond.ID,
		Name:             cond.Name,
		Type:             cond.Type,
		Unit:             cond.Unit,
		MeasurementCount: len(ms),
	}

	pages := make(map[pageKey]*models.PageSubtotal)
	for _, m := range ms {
		q := m.Quantity()
		total.Quantity += q

		key := pageKey{m.SheetID, m.PDFPage}
		sub, ok := pages[key]
		if !ok {
			sub = &models.PageSubtotal{SheetID: m.SheetID, Page: m.PDFPage}
			pages[key] = sub
		}
		sub.Quantity += q
		sub.Count++
	}

	for _, sub := range pages {
		total.Pages = append(total.Pages, *sub)
	}
	// Детерминированный порядок строк отчёта.
	sort.Slice(total.Pages, func(i, j int) bool {
		if total.Pages[i].SheetID != total.Pages[j].SheetID {
			return total.Pages[i].SheetID < total.Pages[j].SheetID
		}
		return total.Pages[i].Page < total.Pages[j].Page
	})

	return total
}

// costLine считает смету условия: отходы задаются процентом, стоимость
// отходов ведёт материальная ставка.
func costLine(cond models.Condition, quantity float64) models.CostLine {
	line := models.CostLine{
		ConditionID:           cond.ID,
		Name:                  cond.Name,
		Unit:                  cond.Unit,
		Quantity:              quantity,
		WasteAdjustedQuantity: quantity * (1 + cond.WasteFactor/100),
		MaterialTotal:         quantity * cond.MaterialCost,
		LaborTotal:            quantity * cond.LaborCost,
		EquipmentTotal:        quantity * cond.EquipmentCost,
		WasteCost:             quantity * cond.WasteFactor / 100 * cond.MaterialCost,
	}
	line.Total = line.MaterialTotal + line.LaborTotal + line.EquipmentTotal + line.WasteCost
	return line
}
