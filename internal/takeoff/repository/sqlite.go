package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"takeoff-engine/internal/takeoff/models"
)

// ============================================================
// SQLite Repository
// ============================================================

type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Init запускает миграции.
func (r *Repository) Init(ctx context.Context, migrationsPath string) error {
	data, err := os.ReadFile(migrationsPath)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// ============================================================
// Projects & Sheets
// ============================================================

func (r *Repository) CreateProject(ctx context.Context, p models.Project) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO projects (id, name, profit_margin)
        VALUES (?, ?, ?)
    `, p.ID, p.Name, p.ProfitMargin)
	return err
}

func (r *Repository) Project(ctx context.Context, id string) (*models.Project, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, name, profit_margin, created_at
        FROM projects
        WHERE id = ?
    `, id)

	var p models.Project
	if err := row.Scan(&p.ID, &p.Name, &p.ProfitMargin, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) AddSheet(ctx context.Context, s models.Sheet) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO sheets (id, project_id, name, page_count)
        VALUES (?, ?, ?, ?)
    `, s.ID, s.ProjectID, s.Name, s.PageCount)
	return err
}

func (r *Repository) SheetsFor(ctx context.Context, projectID string) ([]models.Sheet, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, project_id, name, page_count, created_at
        FROM sheets
        WHERE project_id = ?
        ORDER BY created_at, id
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []models.Sheet
	for rows.Next() {
		var s models.Sheet
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &s.PageCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		sheets = append(sheets, s)
	}
	return sheets, rows.Err()
}

// ============================================================
// Conditions
// ============================================================

func (r *Repository) SaveCondition(ctx context.Context, c models.Condition) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO conditions
            (id, project_id, name, type, unit, color, waste_factor,
             material_cost, labor_cost, equipment_cost,
             include_height, height, include_perimeter)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, c.ID, c.ProjectID, c.Name, string(c.Type), c.Unit, c.Color, c.WasteFactor,
		c.MaterialCost, c.LaborCost, c.EquipmentCost,
		c.IncludeHeight, c.Height, c.IncludePerimeter)
	return err
}

func (r *Repository) ConditionByID(ctx context.Context, id string) (*models.Condition, error) {
	row := r.db.QueryRowContext(ctx, conditionSelect+` WHERE id = ?`, id)
	return scanCondition(row)
}

// ConditionsFor возвращает условия проекта в порядке создания — агрегатор
// порядок не меняет.
func (r *Repository) ConditionsFor(ctx context.Context, projectID string) ([]models.Condition, error) {
	rows, err := r.db.QueryContext(ctx, conditionSelect+`
        WHERE project_id = ?
        ORDER BY created_at, id
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conditions []models.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, *c)
	}
	return conditions, rows.Err()
}

// DeleteCondition каскадно удаляет условие вместе с его измерениями и их
// леджерами вырезов.
func (r *Repository) DeleteCondition(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        DELETE FROM cutouts
        WHERE measurement_id IN (SELECT id FROM measurements WHERE condition_id = ?)
    `, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM measurements WHERE condition_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conditions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

const conditionSelect = `
        SELECT id, project_id, name, type, unit, color, waste_factor,
               material_cost, labor_cost, equipment_cost,
               include_height, height, include_perimeter, created_at
        FROM conditions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCondition(row rowScanner) (*models.Condition, error) {
	var c models.Condition
	var typ string
	err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &typ, &c.Unit, &c.Color, &c.WasteFactor,
		&c.MaterialCost, &c.LaborCost, &c.EquipmentCost,
		&c.IncludeHeight, &c.Height, &c.IncludePerimeter, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	c.Type = models.MeasurementType(typ)
	return &c, nil
}

// ============================================================
// Calibrations
// ============================================================

// SaveCalibration заменяет калибровку той же области действия
// (проект, лист, страница): на область всегда резолвится не более одной
// записи.
func (r *Repository) SaveCalibration(ctx context.Context, c models.Calibration) error {
	return r.SaveCalibrationBatch(ctx, []models.Calibration{c})
}

// SaveCalibrationBatch пишет набор записей в одной транзакции — так
// сохраняется калибровка уровня документа для всех листов проекта.
func (r *Repository) SaveCalibrationBatch(ctx context.Context, records []models.Calibration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range records {
		// `IS ?` сравнивает и NULL-страницы (уровень документа).
		if _, err := tx.ExecContext(ctx, `
            DELETE FROM calibrations
            WHERE project_id = ? AND sheet_id = ? AND page_number IS ?
        `, c.ProjectID, c.SheetID, c.PageNumber); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
            INSERT INTO calibrations
                (id, project_id, sheet_id, page_number, scale_factor, unit,
                 viewport_width, viewport_height, rotation)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        `, c.ID, c.ProjectID, c.SheetID, c.PageNumber, c.ScaleFactor, c.Unit,
			c.ViewportWidth, c.ViewportHeight, c.Rotation); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) CalibrationsFor(ctx context.Context, projectID, sheetID string) ([]models.Calibration, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, project_id, sheet_id, page_number, scale_factor, unit,
               viewport_width, viewport_height, rotation, created_at
        FROM calibrations
        WHERE project_id = ? AND sheet_id = ?
    `, projectID, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Calibration
	for rows.Next() {
		var c models.Calibration
		var page sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.SheetID, &page, &c.ScaleFactor, &c.Unit,
			&c.ViewportWidth, &c.ViewportHeight, &c.Rotation, &c.CreatedAt); err != nil {
			return nil, err
		}
		if page.Valid {
			n := int(page.Int64)
			c.PageNumber = &n
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

// ============================================================
// Measurements
// ============================================================

func (r *Repository) SaveMeasurement(ctx context.Context, m models.Measurement) error {
	points, err := json.Marshal(m.Points)
	if err != nil {
		return fmt.Errorf("encode points: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO measurements
            (id, project_id, sheet_id, condition_id, type, points,
             calculated_value, net_calculated_value, perimeter_value, unit, pdf_page)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, m.ID, m.ProjectID, m.SheetID, m.ConditionID, string(m.Type), string(points),
		m.CalculatedValue, nullable(m.NetCalculatedValue), nullable(m.PerimeterValue),
		m.Unit, m.PDFPage)
	return err
}

func (r *Repository) Measurement(ctx context.Context, id string) (*models.Measurement, error) {
	row := r.db.QueryRowContext(ctx, measurementSelect+` WHERE id = ?`, id)
	return scanMeasurement(row)
}

func (r *Repository) MeasurementsFor(ctx context.Context, projectID string) ([]models.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, measurementSelect+`
        WHERE project_id = ?
        ORDER BY created_at, id
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ms []models.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		ms = append(ms, *m)
	}
	return ms, rows.Err()
}

// UpdateNetValue — единственная мутация измерения: леджер вырезов меняет
// net, точки неизменны.
func (r *Repository) UpdateNetValue(ctx context.Context, measurementID string, net float64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE measurements SET net_calculated_value = ? WHERE id = ?
    `, net, measurementID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteMeasurement(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cutouts WHERE measurement_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM measurements WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

const measurementSelect = `
        SELECT id, project_id, sheet_id, condition_id, type, points,
               calculated_value, net_calculated_value, perimeter_value, unit,
               pdf_page, created_at
        FROM measurements`

func scanMeasurement(row rowScanner) (*models.Measurement, error) {
	var m models.Measurement
	var typ, points string
	var net, perimeter sql.NullFloat64
	err := row.Scan(&m.ID, &m.ProjectID, &m.SheetID, &m.ConditionID, &typ, &points,
		&m.CalculatedValue, &net, &perimeter, &m.Unit, &m.PDFPage, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	m.Type = models.MeasurementType(typ)
	if err := json.Unmarshal([]byte(points), &m.Points); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	if net.Valid {
		m.NetCalculatedValue = &net.Float64
	}
	if perimeter.Valid {
		m.PerimeterValue = &perimeter.Float64
	}
	return &m, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// ============================================================
// Cutouts
// ============================================================

func (r *Repository) AddCutout(ctx context.Context, c models.Cutout) error {
	points, err := json.Marshal(c.Points)
	if err != nil {
		return fmt.Errorf("encode points: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO cutouts (id, measurement_id, points, deduction)
        VALUES (?, ?, ?, ?)
    `, c.ID, c.MeasurementID, string(points), c.Deduction)
	return err
}

func (r *Repository) CutoutsFor(ctx context.Context, measurementID string) ([]models.Cutout, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, measurement_id, points, deduction, created_at
        FROM cutouts
        WHERE measurement_id = ?
        ORDER BY created_at, id
    `, measurementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cuts []models.Cutout
	for rows.Next() {
		var c models.Cutout
		var points string
		if err := rows.Scan(&c.ID, &c.MeasurementID, &points, &c.Deduction, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(points), &c.Points); err != nil {
			return nil, fmt.Errorf("decode points: %w", err)
		}
		cuts = append(cuts, c)
	}
	return cuts, rows.Err()
}

// ============================================================
// Connection
// ============================================================

// OpenSQLite открывает sqlite по указанному пути.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
