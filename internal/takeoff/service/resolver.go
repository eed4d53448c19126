package service

import (
	"context"
	"sync"

	"takeoff-engine/internal/takeoff/models"
)

// ============================================================
// Calibration Resolver
// ============================================================

type CalibrationStore interface {
	CalibrationsFor(ctx context.Context, projectID, sheetID string) ([]models.Calibration, error)
}

type sheetKey struct {
	projectID string
	sheetID   string
}

// Resolver выбирает применимую калибровку: запись для конкретной страницы
// перекрывает запись уровня документа (PageNumber == nil). Результаты
// кэшируются по (проект, лист); любая запись калибровки для этой пары
// обязана инвалидировать кэш, иначе устаревший масштаб молча портит все
// последующие измерения страницы.
type Resolver struct {
	store CalibrationStore

	mu    sync.Mutex
	cache map[sheetKey][]models.Calibration
}

func NewResolver(store CalibrationStore) *Resolver {
	return &Resolver{
		store: store,
		cache: make(map[sheetKey][]models.Calibration),
	}
}

// Resolve возвращает калибровку для (проект, лист, страница) или nil,
// если лист не калиброван.
func (r *Resolver) Resolve(ctx context.Context, projectID, sheetID string, page int) (*models.Calibration, error) {
	key := sheetKey{projectID, sheetID}

	r.mu.Lock()
	records, ok := r.cache[key]
	r.mu.Unlock()

	if !ok {
		loaded, err := r.store.CalibrationsFor(ctx, projectID, sheetID)
		if err != nil {
			return nil, err
		}
		records = loaded

		r.mu.Lock()
		r.cache[key] = records
		r.mu.Unlock()
	}

	var docLevel *models.Calibration
	for i := range records {
		c := records[i]
		if c.PageNumber != nil && *c.PageNumber == page {
			return &c, nil
		}
		if c.PageNumber == nil && docLevel == nil {
			docLevel = &c
		}
	}
	return docLevel, nil
}

// Invalidate сбрасывает кэш пары (проект, лист); вызывается после каждой
// записи калибровки.
func (r *Resolver) Invalidate(projectID, sheetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, sheetKey{projectID, sheetID})
}
