package models

// ============================================================
// Geometry primitives
// ============================================================

// Point — точка в page space (координаты страницы PDF при scale=1,
// без поворота). Экранные клики конвертируются через geometry.ToPageSpace
// до сохранения.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ============================================================
// Measurement types
// ============================================================

type MeasurementType string

const (
	TypeLinear MeasurementType = "linear"
	TypeArea   MeasurementType = "area"
	TypeVolume MeasurementType = "volume"
	TypeCount  MeasurementType = "count"
)

// MinPoints возвращает минимальное число точек для завершения фигуры.
func (t MeasurementType) MinPoints() int {
	switch t {
	case TypeLinear:
		return 2
	case TypeArea, TypeVolume:
		return 3
	case TypeCount:
		return 1
	}
	return 0
}

// SupportsCutout — вырезы применимы только к площадям и объёмам.
func (t MeasurementType) SupportsCutout() bool {
	return t == TypeArea || t == TypeVolume
}

// Valid проверяет, что тип известен.
func (t MeasurementType) Valid() bool {
	switch t {
	case TypeLinear, TypeArea, TypeVolume, TypeCount:
		return true
	}
	return false
}

// ============================================================
// Records
// ============================================================

// Calibration — масштаб страницы: page-space единиц на единицу
// реального мира. PageNumber == nil означает калибровку уровня документа;
// запись с номером страницы перекрывает её для этой страницы.
type Calibration struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	SheetID        string  `json:"sheet_id"`
	PageNumber     *int    `json:"page_number"`
	ScaleFactor    float64 `json:"scale_factor"`
	Unit           string  `json:"unit"`
	ViewportWidth  float64 `json:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height"`
	Rotation       float64 `json:"rotation"`
	CreatedAt      string  `json:"created_at"`
}

// Measurement — завершённая фигура. Points неизменяемы после создания;
// вырезы меняют только NetCalculatedValue.
type Measurement struct {
	ID                 string          `json:"id"`
	ProjectID          string          `json:"project_id"`
	SheetID            string          `json:"sheet_id"`
	ConditionID        string          `json:"condition_id"`
	Type               MeasurementType `json:"type"`
	Points             []Point         `json:"points"`
	CalculatedValue    float64         `json:"calculated_value"`
	NetCalculatedValue *float64        `json:"net_calculated_value"`
	PerimeterValue     *float64        `json:"perimeter_value,omitempty"`
	Unit               string          `json:"unit"`
	PDFPage            int             `json:"pdf_page"`
	CreatedAt          string          `json:"created_at"`
}

// Quantity возвращает net ?? gross.
func (m *Measurement) Quantity() float64 {
	if m.NetCalculatedValue != nil {
		return *m.NetCalculatedValue
	}
	return m.CalculatedValue
}

// Cutout — одна строка леджера вычетов измерения. Deduction хранится в
// единицах реального мира (уже поделено на scaleFactor²), чтобы net
// пересчитывался как gross − Σ deductions без повторной калибровки.
type Cutout struct {
	ID            string  `json:"id"`
	MeasurementID string  `json:"measurement_id"`
	Points        []Point `json:"points"`
	Deduction     float64 `json:"deduction"`
	CreatedAt     string  `json:"created_at"`
}

// Condition — категория takeoff (например "Drywall"): единица измерения,
// ставки стоимости и процент отходов. Владеет измерениями (1:N, cascade).
type Condition struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	Name             string          `json:"name"`
	Type             MeasurementType `json:"type"`
	Unit             string          `json:"unit"`
	Color            string          `json:"color"`
	WasteFactor      float64         `json:"waste_factor"`
	MaterialCost     float64         `json:"material_cost"`
	LaborCost        float64         `json:"labor_cost"`
	EquipmentCost    float64         `json:"equipment_cost"`
	IncludeHeight    bool            `json:"include_height"`
	Height           float64         `json:"height"`
	IncludePerimeter bool            `json:"include_perimeter"`
	CreatedAt        string          `json:"created_at"`
}

// HasCosts — условие участвует в смете, если хоть одна ставка ненулевая.
func (c *Condition) HasCosts() bool {
	return c.MaterialCost > 0 || c.LaborCost > 0 || c.EquipmentCost > 0
}

type Project struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ProfitMargin float64 `json:"profit_margin"`
	CreatedAt    string  `json:"created_at"`
}

// Sheet — загруженный PDF (чертёж) внутри проекта.
type Sheet struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	PageCount int    `json:"page_count"`
	CreatedAt string `json:"created_at"`
}

// ============================================================
// Report types
// ============================================================

// PageSubtotal — строка drill-down отчёта: итог условия на (лист, страница).
type PageSubtotal struct {
	SheetID  string  `json:"sheet_id"`
	Page     int     `json:"page"`
	Quantity float64 `json:"quantity"`
	Count    int     `json:"count"`
}

type ConditionTotal struct {
	ConditionID      string          `json:"condition_id"`
	Name             string          `json:"name"`
	Type             MeasurementType `json:"type"`
	Unit             string          `json:"unit"`
	Quantity         float64         `json:"quantity"`
	MeasurementCount int             `json:"measurement_count"`
	Pages            []PageSubtotal  `json:"pages"`
}

// CostLine — смета одного условия.
type CostLine struct {
	ConditionID           string  `json:"condition_id"`
	Name                  string  `json:"name"`
	Unit                  string  `json:"unit"`
	Quantity              float64 `json:"quantity"`
	WasteAdjustedQuantity float64 `json:"waste_adjusted_quantity"`
	MaterialTotal         float64 `json:"material_total"`
	LaborTotal            float64 `json:"labor_total"`
	EquipmentTotal        float64 `json:"equipment_total"`
	WasteCost             float64 `json:"waste_cost"`
	Total                 float64 `json:"total"`
}

type CostSummary struct {
	Lines               []CostLine `json:"lines"`
	Subtotal            float64    `json:"subtotal"`
	ProfitMarginPercent float64    `json:"profit_margin_percent"`
	ProfitMarginAmount  float64    `json:"profit_margin_amount"`
	GrandTotal          float64    `json:"grand_total"`
}

type ProjectReport struct {
	ProjectID         string           `json:"project_id"`
	Conditions        []ConditionTotal `json:"conditions"`
	Costs             CostSummary      `json:"costs"`
	TotalConditions   int              `json:"total_conditions"`
	TotalMeasurements int              `json:"total_measurements"`
}
