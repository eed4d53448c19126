package calibration

import (
	"math"

	"takeoff-engine/internal/takeoff/models"
)

// ============================================================
// Calibration state machine
// ============================================================

type State int

const (
	StateIdle State = iota
	StateAwaitingFirstPoint
	StateAwaitingSecondPoint
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstPoint:
		return "awaiting_first_point"
	case StateAwaitingSecondPoint:
		return "awaiting_second_point"
	case StateComplete:
		return "complete"
	}
	return "unknown"
}

// Порог ortho-snap: если отрезок в пределах 5° от горизонтали или
// вертикали, вторая точка прижимается к оси. Влияет на сохраняемый
// масштаб, поэтому воспроизводится точно.
const orthoSnapAngleDeg = 5.0

// Session — двухкликовая калибровочная сессия для одной пары
// (лист, страница). Вызовы не сериализуются внутри: одновременно активна
// одна сессия, за очерёдность отвечает вызывающий слой.
type Session struct {
	state         State
	knownDistance float64
	unit          string
	first, second models.Point
	orthoSnap     bool
	scaleFactor   float64
}

func NewSession(orthoSnap bool) *Session {
	return &Session{state: StateIdle, orthoSnap: orthoSnap}
}

func (s *Session) State() State { return s.state }

// Begin парсит известное расстояние и переводит сессию в ожидание
// первого клика. Невалидный ввод оставляет сессию в Idle.
func (s *Session) Begin(rawDistance, unit string) error {
	if s.state != StateIdle {
		return models.ErrInvalidCalibrationInput
	}

	value, err := ParseKnownDistance(rawDistance)
	if err != nil {
		return err
	}

	s.knownDistance = value
	s.unit = unit
	s.state = StateAwaitingFirstPoint
	return nil
}

// AddPoint фиксирует очередной клик (точка уже в page space).
// Второй клик завершает сессию: считается масштаб и проверяются пределы
// правдоподобия; вне [0.001, 1000] сессия сбрасывается в Idle и ничего
// не сохраняется.
func (s *Session) AddPoint(p models.Point) error {
	switch s.state {
	case StateAwaitingFirstPoint:
		s.first = p
		s.state = StateAwaitingSecondPoint
		return nil

	case StateAwaitingSecondPoint:
		if s.orthoSnap {
			p = snapToAxis(s.first, p)
		}
		s.second = p

		pageDist := math.Hypot(s.second.X-s.first.X, s.second.Y-s.first.Y)
		factor := pageDist / s.knownDistance
		if factor < models.MinScaleFactor || factor > models.MaxScaleFactor {
			s.reset()
			return models.ErrImplausibleScaleFactor
		}

		s.scaleFactor = factor
		s.state = StateComplete
		return nil
	}

	return models.ErrInvalidCalibrationInput
}

// Result возвращает масштаб и единицу завершённой сессии.
func (s *Session) Result() (scaleFactor float64, unit string, err error) {
	if s.state != StateComplete {
		return 0, "", models.ErrInvalidCalibrationInput
	}
	return s.scaleFactor, s.unit, nil
}

// Cancel возвращает сессию в Idle из любого состояния, ничего не сохраняя.
func (s *Session) Cancel() {
	s.reset()
}

func (s *Session) reset() {
	*s = Session{orthoSnap: s.orthoSnap}
}

// snapToAxis прижимает вторую точку к горизонтали/вертикали первой, если
// отрезок почти осевой.
func snapToAxis(first, second models.Point) models.Point {
	dx := math.Abs(second.X - first.X)
	dy := math.Abs(second.Y - first.Y)
	if dx == 0 && dy == 0 {
		return second
	}

	angle := math.Atan2(dy, dx) * 180 / math.Pi
	switch {
	case angle <= orthoSnapAngleDeg:
		second.Y = first.Y
	case 90-angle <= orthoSnapAngleDeg:
		second.X = first.X
	}
	return second
}
