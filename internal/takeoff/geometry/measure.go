package geometry

import (
	"math"

	"takeoff-engine/internal/takeoff/models"
)

// ============================================================
// Measurement Geometry Engine
// ============================================================

// Чистые функции над списками точек в page space. Результат делится на
// scaleFactor (page-space единиц на единицу реального мира), для площадей
// — на scaleFactor². Полигоны замыкаются неявно: последняя точка
// соединяется с первой здесь, и только здесь.

// Value — результат вычисления измерения.
type Value struct {
	Calculated float64
	Perimeter  *float64
}

// Compute считает величину измерения по типу. conditionMeta обязательна
// для volume (глубина) и для perimeter-опции; для остальных типов может
// быть nil.
func Compute(t models.MeasurementType, points []models.Point, scaleFactor float64, cond *models.Condition) (Value, error) {
	if scaleFactor <= 0 {
		return Value{}, models.ErrImplausibleScaleFactor
	}
	if len(points) < t.MinPoints() {
		return Value{}, models.ErrInsufficientPoints
	}

	switch t {
	case models.TypeLinear:
		v, err := Linear(points, scaleFactor)
		return Value{Calculated: v}, err

	case models.TypeArea:
		a, err := Area(points, scaleFactor)
		if err != nil {
			return Value{}, err
		}
		out := Value{Calculated: a}
		if cond != nil && cond.IncludePerimeter {
			p, err := Perimeter(points, scaleFactor)
			if err != nil {
				return Value{}, err
			}
			out.Perimeter = &p
		}
		return out, nil

	case models.TypeVolume:
		depth := 0.0
		if cond != nil && cond.IncludeHeight {
			depth = cond.Height
		}
		v, err := Volume(points, scaleFactor, depth)
		if err != nil {
			return Value{}, err
		}
		out := Value{Calculated: v}
		if cond != nil && cond.IncludePerimeter {
			p, err := Perimeter(points, scaleFactor)
			if err != nil {
				return Value{}, err
			}
			out.Perimeter = &p
		}
		return out, nil

	case models.TypeCount:
		// Одна точка — одна штука; суммирование происходит в агрегаторе.
		return Value{Calculated: 1}, nil
	}

	return Value{}, models.ErrInsufficientPoints
}

// Linear — сумма евклидовых расстояний между последовательными точками.
// Совпадающие соседние точки дают вклад 0.
func Linear(points []models.Point, scaleFactor float64) (float64, error) {
	if len(points) < 2 {
		return 0, models.ErrInsufficientPoints
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += dist(points[i-1], points[i])
	}
	return total / scaleFactor, nil
}

// Area — формула шнурования по неявно замкнутому полигону, делённая на
// scaleFactor². Направление обхода (CW/CCW) на модуль не влияет.
// Самопересекающиеся полигоны не отбраковываются: результат шнурования
// принимается как есть (документированное ограничение).
func Area(points []models.Point, scaleFactor float64) (float64, error) {
	if len(points) < 3 {
		return 0, models.ErrInsufficientPoints
	}
	return ShoelaceArea(points) / (scaleFactor * scaleFactor), nil
}

// ShoelaceArea — |Σ(xᵢyᵢ₊₁ − xᵢ₊₁yᵢ)| / 2 в page-space единицах².
func ShoelaceArea(points []models.Point) float64 {
	n := len(points)
	if n < 3 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return math.Abs(sum) / 2
}

// Perimeter — сумма длин рёбер замкнутого полигона.
func Perimeter(points []models.Point, scaleFactor float64) (float64, error) {
	if len(points) < 3 {
		return 0, models.ErrInsufficientPoints
	}

	var total float64
	n := len(points)
	for i := 0; i < n; i++ {
		total += dist(points[i], points[(i+1)%n])
	}
	return total / scaleFactor, nil
}

// Volume = Area × depth. Производная величина (глубину задаёт условие),
// не настоящее 3D-измерение.
func Volume(points []models.Point, scaleFactor, depth float64) (float64, error) {
	a, err := Area(points, scaleFactor)
	if err != nil {
		return 0, err
	}
	return a * depth, nil
}

func dist(a, b models.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
