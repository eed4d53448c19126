package service

import (
	"context"
	"fmt"

	"takeoff-engine/internal/takeoff/geometry"
	"takeoff-engine/internal/takeoff/models"

	"github.com/google/uuid"
)

// ============================================================
// Cut-out Engine
// ============================================================

type CutoutStore interface {
	Measurement(ctx context.Context, id string) (*models.Measurement, error)
	ConditionByID(ctx context.Context, id string) (*models.Condition, error)
	CutoutsFor(ctx context.Context, measurementID string) ([]models.Cutout, error)
	AddCutout(ctx context.Context, c models.Cutout) error
	UpdateNetValue(ctx context.Context, measurementID string, net float64) error
}

type CutoutResult struct {
	MeasurementID      string  `json:"measurement_id"`
	NetCalculatedValue float64 `json:"net_calculated_value"`
	Warning            string  `json:"warning,omitempty"`
}

// CutoutEngine ведёт леджер вычетов: каждая заявка добавляет строку, а net
// каждый раз пересчитывается как max(0, gross − Σ всех вычетов). Никогда
// не вычитаем из устаревшего net — инкрементальное вычитание дрейфует при
// повторном применении.
type CutoutEngine struct {
	store CutoutStore
}

func NewCutoutEngine(store CutoutStore) *CutoutEngine {
	return &CutoutEngine{store: store}
}

// Apply вычитает площадь полигона-выреза из измерения. Точки уже в page
// space; scaleFactor — разрешённая калибровка страницы измерения.
func (e *CutoutEngine) Apply(ctx context.Context, measurementID string, points []models.Point, scaleFactor float64) (*CutoutResult, error) {
	if scaleFactor <= 0 {
		return nil, models.ErrImplausibleScaleFactor
	}
	if len(points) < 3 {
		return nil, models.ErrInsufficientPoints
	}

	m, err := e.store.Measurement(ctx, measurementID)
	if err != nil {
		return nil, err
	}
	if !m.Type.SupportsCutout() {
		return nil, models.ErrCutoutTypeMismatch
	}

	area := geometry.ShoelaceArea(points) / (scaleFactor * scaleFactor)

	// Вычет хранится в тех же единицах, что и gross: для объёма площадь
	// умножается на глубину условия.
	deduction := area
	if m.Type == models.TypeVolume {
		cond, err := e.store.ConditionByID(ctx, m.ConditionID)
		if err != nil {
			return nil, fmt.Errorf("load condition: %w", err)
		}
		if cond.IncludeHeight && cond.Height > 0 {
			deduction = area * cond.Height
		}
	}

	cut := models.Cutout{
		ID:            uuid.NewString(),
		MeasurementID: measurementID,
		Points:        points,
		Deduction:     deduction,
	}
	if err := e.store.AddCutout(ctx, cut); err != nil {
		return nil, fmt.Errorf("record cutout: %w", err)
	}

	existing, err := e.store.CutoutsFor(ctx, measurementID)
	if err != nil {
		return nil, fmt.Errorf("load cutout ledger: %w", err)
	}

	var total float64
	for _, c := range existing {
		total += c.Deduction
	}

	result := &CutoutResult{MeasurementID: measurementID}
	net := m.CalculatedValue - total
	if net < 0 {
		net = 0
		result.Warning = models.WarnCutoutExceedsGross
	}
	result.NetCalculatedValue = net

	if err := e.store.UpdateNetValue(ctx, measurementID, net); err != nil {
		return nil, fmt.Errorf("update net value: %w", err)
	}
	return result, nil
}
