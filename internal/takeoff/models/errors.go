package models

import "errors"

// ============================================================
// Error taxonomy
// ============================================================

// Все ошибки ядра локальны и восстановимы: они отменяют текущий жест
// пользователя и возвращают сессию в прежнее стабильное состояние,
// ничего не записывая.
var (
	// ErrTransformUnavailable — viewport ещё не установлен (страница не
	// отрисована); точку фиксировать нельзя.
	ErrTransformUnavailable = errors.New("transform unavailable: viewport not ready")

	// ErrInvalidCalibrationInput — известное расстояние пустое, нулевое,
	// отрицательное или не парсится.
	ErrInvalidCalibrationInput = errors.New("invalid calibration input")

	// ErrImplausibleScaleFactor — вычисленный масштаб вне [0.001, 1000].
	ErrImplausibleScaleFactor = errors.New("implausible scale factor")

	// ErrInsufficientPoints — точек меньше, чем требует тип измерения.
	ErrInsufficientPoints = errors.New("insufficient points for measurement type")

	// ErrCutoutTypeMismatch — вырез применим только к area/volume.
	ErrCutoutTypeMismatch = errors.New("cutout requires an area or volume measurement")

	ErrNotFound = errors.New("not found")
)

// Пределы правдоподобия масштаба: защита от случайного клика,
// дающего вырожденную калибровку.
const (
	MinScaleFactor = 0.001
	MaxScaleFactor = 1000.0
)

// WarnCutoutExceedsGross — не ошибка: суммарные вычеты превысили gross,
// net обрезан до нуля (пользователь может сознательно перекрывать вырезы).
const WarnCutoutExceedsGross = "cutout exceeds gross value, net clamped to 0"
