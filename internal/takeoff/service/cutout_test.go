package service

import (
	"context"
	"testing"

	"takeoff-engine/internal/takeoff/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Fake store
// ============================================================

type fakeStore struct {
	projects     map[string]*models.Project
	conditions   map[string]*models.Condition
	condOrder    []string
	measurements map[string]*models.Measurement
	measOrder    []string
	cutouts      map[string][]models.Cutout
	calibrations map[string][]models.Calibration // projectID|sheetID
	calLoads     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:     make(map[string]*models.Project),
		conditions:   make(map[string]*models.Condition),
		measurements: make(map[string]*models.Measurement),
		cutouts:      make(map[string][]models.Cutout),
		calibrations: make(map[string][]models.Calibration),
	}
}

func (f *fakeStore) Project(_ context.Context, id string) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ConditionByID(_ context.Context, id string) (*models.Condition, error) {
	c, ok := f.conditions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ConditionsFor(_ context.Context, projectID string) ([]models.Condition, error) {
	var out []models.Condition
	for _, id := range f.condOrder {
		if c := f.conditions[id]; c.ProjectID == projectID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) Measurement(_ context.Context, id string) (*models.Measurement, error) {
	m, ok := f.measurements[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) MeasurementsFor(_ context.Context, projectID string) ([]models.Measurement, error) {
	var out []models.Measurement
	for _, id := range f.measOrder {
		if m := f.measurements[id]; m.ProjectID == projectID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) CutoutsFor(_ context.Context, measurementID string) ([]models.Cutout, error) {
	return f.cutouts[measurementID], nil
}

func (f *fakeStore) AddCutout(_ context.Context, c models.Cutout) error {
	f.cutouts[c.MeasurementID] = append(f.cutouts[c.MeasurementID], c)
	return nil
}

func (f *fakeStore) UpdateNetValue(_ context.Context, measurementID string, net float64) error {
	m, ok := f.measurements[measurementID]
	if !ok {
		return models.ErrNotFound
	}
	m.NetCalculatedValue = &net
	return nil
}

func (f *fakeStore) CalibrationsFor(_ context.Context, projectID, sheetID string) ([]models.Calibration, error) {
	f.calLoads++
	return f.calibrations[projectID+"|"+sheetID], nil
}

func (f *fakeStore) addCondition(c models.Condition) {
	f.conditions[c.ID] = &c
	f.condOrder = append(f.condOrder, c.ID)
}

func (f *fakeStore) addMeasurement(m models.Measurement) {
	f.measurements[m.ID] = &m
	f.measOrder = append(f.measOrder, m.ID)
}

// ============================================================
// Cutout engine tests
// ============================================================

// Page-space area 20 at scaleFactor 10 -> deduction 0.2.
var cutout20 = []models.Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 4}, {X: 0, Y: 4}}

// Page-space area 30 at scaleFactor 10 -> deduction 0.3.
var cutout30 = []models.Point{{X: 0, Y: 0}, {X: 6, Y: 0}, {X: 6, Y: 5}, {X: 0, Y: 5}}

func areaMeasurement(id string, gross float64) models.Measurement {
	return models.Measurement{
		ID:              id,
		ProjectID:       "p1",
		SheetID:         "s1",
		ConditionID:     "c1",
		Type:            models.TypeArea,
		CalculatedValue: gross,
		Unit:            "sq ft",
		PDFPage:         1,
	}
}

func TestCutoutApply(t *testing.T) {
	store := newFakeStore()
	store.addMeasurement(areaMeasurement("m1", 1.0))
	engine := NewCutoutEngine(store)

	result, err := engine.Apply(context.Background(), "m1", cutout20, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, result.NetCalculatedValue, 1e-9)
	assert.Empty(t, result.Warning)

	// Net persisted on the measurement.
	m := store.measurements["m1"]
	require.NotNil(t, m.NetCalculatedValue)
	assert.InDelta(t, 0.8, *m.NetCalculatedValue, 1e-9)
	// Gross untouched.
	assert.InDelta(t, 1.0, m.CalculatedValue, 1e-9)
}

func TestCutoutMonotonicity(t *testing.T) {
	store := newFakeStore()
	store.addMeasurement(areaMeasurement("m1", 1.0))
	engine := NewCutoutEngine(store)

	prev := 1.0
	for i := 0; i < 6; i++ {
		result, err := engine.Apply(context.Background(), "m1", cutout20, 10)
		require.NoError(t, err)
		assert.LessOrEqual(t, result.NetCalculatedValue, prev)
		assert.GreaterOrEqual(t, result.NetCalculatedValue, 0.0)
		prev = result.NetCalculatedValue
	}
	// 6 × 0.2 > 1.0: clamped at zero by now.
	assert.Zero(t, prev)
}

func TestCutoutOrderIndependence(t *testing.T) {
	run := func(first, second []models.Point) float64 {
		store := newFakeStore()
		store.addMeasurement(areaMeasurement("m1", 1.0))
		engine := NewCutoutEngine(store)

		_, err := engine.Apply(context.Background(), "m1", first, 10)
		require.NoError(t, err)
		result, err := engine.Apply(context.Background(), "m1", second, 10)
		require.NoError(t, err)
		return result.NetCalculatedValue
	}

	ab := run(cutout20, cutout30)
	ba := run(cutout30, cutout20)
	assert.InDelta(t, ab, ba, 1e-9)
	assert.InDelta(t, 0.5, ab, 1e-9)
}

func TestCutoutExceedsGrossClampsToZero(t *testing.T) {
	store := newFakeStore()
	store.addMeasurement(areaMeasurement("m1", 0.3))
	engine := NewCutoutEngine(store)

	result, err := engine.Apply(context.Background(), "m1", cutout20, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, result.NetCalculatedValue, 1e-9)
	assert.Empty(t, result.Warning)

	// Second cutout pushes the ledger past the gross value: warning, not error.
	result, err = engine.Apply(context.Background(), "m1", cutout30, 10)
	require.NoError(t, err)
	assert.Zero(t, result.NetCalculatedValue)
	assert.Equal(t, models.WarnCutoutExceedsGross, result.Warning)
}

func TestCutoutTypeMismatch(t *testing.T) {
	for _, typ := range []models.MeasurementType{models.TypeLinear, models.TypeCount} {
		store := newFakeStore()
		m := areaMeasurement("m1", 5)
		m.Type = typ
		store.addMeasurement(m)
		engine := NewCutoutEngine(store)

		_, err := engine.Apply(context.Background(), "m1", cutout20, 10)
		assert.ErrorIs(t, err, models.ErrCutoutTypeMismatch, "type %s", typ)
		// No state change: ledger empty, net untouched.
		assert.Empty(t, store.cutouts["m1"])
		assert.Nil(t, store.measurements["m1"].NetCalculatedValue)
	}
}

func TestCutoutVolumeDeductsDepth(t *testing.T) {
	store := newFakeStore()
	store.addCondition(models.Condition{
		ID: "c1", ProjectID: "p1", Type: models.TypeVolume,
		IncludeHeight: true, Height: 2,
	})
	m := areaMeasurement("m1", 4.0)
	m.Type = models.TypeVolume
	store.addMeasurement(m)
	engine := NewCutoutEngine(store)

	// Area deduction 0.2 × height 2 = 0.4 in volume units.
	result, err := engine.Apply(context.Background(), "m1", cutout20, 10)
	require.NoError(t, err)
	assert.InDelta(t, 3.6, result.NetCalculatedValue, 1e-9)
}

func TestCutoutPreconditions(t *testing.T) {
	store := newFakeStore()
	store.addMeasurement(areaMeasurement("m1", 1.0))
	engine := NewCutoutEngine(store)

	_, err := engine.Apply(context.Background(), "m1", cutout20[:2], 10)
	assert.ErrorIs(t, err, models.ErrInsufficientPoints)

	_, err = engine.Apply(context.Background(), "m1", cutout20, 0)
	assert.ErrorIs(t, err, models.ErrImplausibleScaleFactor)

	_, err = engine.Apply(context.Background(), "missing", cutout20, 10)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
