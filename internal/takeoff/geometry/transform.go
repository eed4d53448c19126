package geometry

import (
	"math"

	"takeoff-engine/internal/takeoff/models"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// Drawing-Space Coordinate Transform
// ============================================================

// ViewportState — состояние окна просмотра в момент клика. Преобразование
// зависит только от (точка, viewport): скролл и зум, случившиеся в другой
// момент, на сохранённую геометрию не влияют.
type ViewportState struct {
	Scale            float64 `json:"scale"`
	Rotation         float64 `json:"rotation"` // degrees
	OriginOffsetX    float64 `json:"origin_offset_x"`
	OriginOffsetY    float64 `json:"origin_offset_y"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
}

// Ready сообщает, установлен ли viewport (страница отрисована).
func (v ViewportState) Ready() bool {
	return v.Scale > 0 && v.DevicePixelRatio > 0
}

// matrix строит аффинную матрицу page→screen:
// масштаб (scale·dpr), затем поворот, затем сдвиг origin.
func (v ViewportState) matrix() *mat.Dense {
	s := v.Scale * v.DevicePixelRatio
	theta := v.Rotation * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)

	return mat.NewDense(3, 3, []float64{
		s * cos, -s * sin, v.OriginOffsetX,
		s * sin, s * cos, v.OriginOffsetY,
		0, 0, 1,
	})
}

// ToScreenSpace переводит точку из page space в экранные пиксели.
func ToScreenSpace(p models.Point, v ViewportState) (models.Point, error) {
	if !v.Ready() {
		return models.Point{}, models.ErrTransformUnavailable
	}
	return apply(v.matrix(), p), nil
}

// ToPageSpace переводит экранный клик в page space. Обратная матрица
// существует для любого готового viewport (определитель s² > 0).
func ToPageSpace(p models.Point, v ViewportState) (models.Point, error) {
	if !v.Ready() {
		return models.Point{}, models.ErrTransformUnavailable
	}

	var inv mat.Dense
	if err := inv.Inverse(v.matrix()); err != nil {
		return models.Point{}, models.ErrTransformUnavailable
	}
	return apply(&inv, p), nil
}

// ToPageSpaceAll конвертирует список кликов; при недоступном viewport не
// возвращает ни одной точки.
func ToPageSpaceAll(points []models.Point, v ViewportState) ([]models.Point, error) {
	if !v.Ready() {
		return nil, models.ErrTransformUnavailable
	}

	var inv mat.Dense
	if err := inv.Inverse(v.matrix()); err != nil {
		return nil, models.ErrTransformUnavailable
	}

	out := make([]models.Point, len(points))
	for i, p := range points {
		out[i] = apply(&inv, p)
	}
	return out, nil
}

func apply(m *mat.Dense, p models.Point) models.Point {
	var dst mat.VecDense
	dst.MulVec(m, mat.NewVecDense(3, []float64{p.X, p.Y, 1}))
	return models.Point{X: dst.AtVec(0), Y: dst.AtVec(1)}
}
