package calibration

import (
	"regexp"
	"strconv"
	"strings"

	"takeoff-engine/internal/takeoff/models"
)

// ============================================================
// Known-distance parser
// ============================================================

// Принимаются либо футы-дюймы (7'6", допускаются голые 7' или 6"),
// либо десятичная запись (12.5). Дюймы переводятся в доли фута.
var (
	feetInchesRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)'\s*(?:(\d+(?:\.\d+)?)")?$`)
	inchesOnlyRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)"$`)
)

// ParseKnownDistance парсит введённое пользователем известное расстояние.
// Пустой, нулевой или отрицательный ввод отклоняется до запуска
// калибровочной сессии.
func ParseKnownDistance(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, models.ErrInvalidCalibrationInput
	}

	var value float64

	switch {
	case feetInchesRe.MatchString(s):
		m := feetInchesRe.FindStringSubmatch(s)
		feet, _ := strconv.ParseFloat(m[1], 64)
		value = feet
		if m[2] != "" {
			inches, _ := strconv.ParseFloat(m[2], 64)
			value += inches / 12
		}

	case inchesOnlyRe.MatchString(s):
		m := inchesOnlyRe.FindStringSubmatch(s)
		inches, _ := strconv.ParseFloat(m[1], 64)
		value = inches / 12

	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, models.ErrInvalidCalibrationInput
		}
		value = v
	}

	if value <= 0 {
		return 0, models.ErrInvalidCalibrationInput
	}
	return value, nil
}
