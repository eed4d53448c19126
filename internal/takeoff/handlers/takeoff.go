package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"takeoff-engine/internal/takeoff/geometry"
	"takeoff-engine/internal/takeoff/models"
	"takeoff-engine/internal/takeoff/repository"
	"takeoff-engine/internal/takeoff/service"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// ============================================================
// Takeoff Handler
// ============================================================

type TakeoffHandler struct {
	repo       *repository.Repository
	sessions   *service.SessionManager
	resolver   *service.Resolver
	cutouts    *service.CutoutEngine
	aggregator *service.Aggregator
}

func NewTakeoffHandler(repo *repository.Repository, sessions *service.SessionManager, resolver *service.Resolver, cutouts *service.CutoutEngine, aggregator *service.Aggregator) *TakeoffHandler {
	return &TakeoffHandler{
		repo:       repo,
		sessions:   sessions,
		resolver:   resolver,
		cutouts:    cutouts,
		aggregator: aggregator,
	}
}

// statusFor переводит ошибки ядра в HTTP-статусы. Все они локальны и
// восстановимы — фатальных среди них нет.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrImplausibleScaleFactor):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrTransformUnavailable):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidCalibrationInput),
		errors.Is(err, models.ErrInsufficientPoints),
		errors.Is(err, models.ErrCutoutTypeMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(c fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

// ============================================================
// Projects & Sheets
// ============================================================

type createProjectRequest struct {
	Name         string  `json:"name"`
	ProfitMargin float64 `json:"profit_margin"`
}

// CreateProject заводит проект.
func (h *TakeoffHandler) CreateProject(c fiber.Ctx) error {
	var req createProjectRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.Name == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "name required"})
	}

	p := models.Project{
		ID:           uuid.NewString(),
		Name:         req.Name,
		ProfitMargin: req.ProfitMargin,
	}
	if err := h.repo.CreateProject(context.Background(), p); err != nil {
		return fail(c, err)
	}

	log.Printf("[TAKEOFF] Project created: %s", p.ID)
	return c.Status(http.StatusCreated).JSON(p)
}

// GetProject возвращает проект.
func (h *TakeoffHandler) GetProject(c fiber.Ctx) error {
	p, err := h.repo.Project(context.Background(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

type addSheetRequest struct {
	Name      string `json:"name"`
	PageCount int    `json:"page_count"`
}

// AddSheet регистрирует чертёж (PDF) в проекте.
func (h *TakeoffHandler) AddSheet(c fiber.Ctx) error {
	var req addSheetRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.Name == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "name required"})
	}
	if req.PageCount <= 0 {
		req.PageCount = 1
	}

	s := models.Sheet{
		ID:        uuid.NewString(),
		ProjectID: c.Params("id"),
		Name:      req.Name,
		PageCount: req.PageCount,
	}
	if err := h.repo.AddSheet(context.Background(), s); err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(s)
}

// ListSheets возвращает листы проекта.
func (h *TakeoffHandler) ListSheets(c fiber.Ctx) error {
	sheets, err := h.repo.SheetsFor(context.Background(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sheets)
}

// ============================================================
// Conditions
// ============================================================

type conditionRequest struct {
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Unit             string  `json:"unit"`
	Color            string  `json:"color"`
	WasteFactor      float64 `json:"waste_factor"`
	MaterialCost     float64 `json:"material_cost"`
	LaborCost        float64 `json:"labor_cost"`
	EquipmentCost    float64 `json:"equipment_cost"`
	IncludeHeight    bool    `json:"include_height"`
	Height           float64 `json:"height"`
	IncludePerimeter bool    `json:"include_perimeter"`
}

// CreateCondition заводит условие takeoff.
func (h *TakeoffHandler) CreateCondition(c fiber.Ctx) error {
	var req conditionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}

	typ := models.MeasurementType(req.Type)
	if req.Name == "" || !typ.Valid() {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "name and valid type required"})
	}

	cond := models.Condition{
		ID:               uuid.NewString(),
		ProjectID:        c.Params("id"),
		Name:             req.Name,
		Type:             typ,
		Unit:             req.Unit,
		Color:            req.Color,
		WasteFactor:      req.WasteFactor,
		MaterialCost:     req.MaterialCost,
		LaborCost:        req.LaborCost,
		EquipmentCost:    req.EquipmentCost,
		IncludeHeight:    req.IncludeHeight,
		Height:           req.Height,
		IncludePerimeter: req.IncludePerimeter,
	}
	if err := h.repo.SaveCondition(context.Background(), cond); err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(cond)
}

// ListConditions возвращает условия проекта в порядке создания.
func (h *TakeoffHandler) ListConditions(c fiber.Ctx) error {
	conditions, err := h.repo.ConditionsFor(context.Background(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conditions)
}

// DeleteCondition каскадно удаляет условие и его измерения.
func (h *TakeoffHandler) DeleteCondition(c fiber.Ctx) error {
	if err := h.repo.DeleteCondition(context.Background(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	log.Printf("[TAKEOFF] Condition deleted (cascade): %s", c.Params("id"))
	return c.SendStatus(http.StatusNoContent)
}

// ============================================================
// Calibration sessions
// ============================================================

type openSessionRequest struct {
	OrthoSnap bool `json:"ortho_snap"`
}

// OpenCalibrationSession создаёт двухкликовую сессию и выдаёт токен.
func (h *TakeoffHandler) OpenCalibrationSession(c fiber.Ctx) error {
	var req openSessionRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
		}
	}

	token := h.sessions.Open(req.OrthoSnap)
	log.Printf("[CALIBRATION] Session opened: %s", token)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"token": token})
}

type distanceRequest struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// SetCalibrationDistance задаёт известное расстояние (футы-дюймы или
// десятичное) и запускает ожидание кликов.
func (h *TakeoffHandler) SetCalibrationDistance(c fiber.Ctx) error {
	session, ok := h.sessions.Get(c.Params("token"))
	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}

	var req distanceRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}

	if err := session.Begin(req.Value, req.Unit); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"state": session.State().String()})
}

type calibrationPointRequest struct {
	Point    models.Point           `json:"point"` // screen pixels
	Viewport geometry.ViewportState `json:"viewport"`
}

// AddCalibrationPoint конвертирует экранный клик в page space и передаёт
// его машине состояний. Неготовый viewport блокирует фиксацию точки.
func (h *TakeoffHandler) AddCalibrationPoint(c fiber.Ctx) error {
	session, ok := h.sessions.Get(c.Params("token"))
	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}

	var req calibrationPointRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}

	pagePoint, err := geometry.ToPageSpace(req.Point, req.Viewport)
	if err != nil {
		return fail(c, err)
	}

	if err := session.AddPoint(pagePoint); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"state": session.State().String()})
}

type commitCalibrationRequest struct {
	ProjectID      string  `json:"project_id"`
	SheetID        string  `json:"sheet_id"`
	Scope          string  `json:"scope"` // page | document
	PageNumber     int     `json:"page_number"`
	ViewportWidth  float64 `json:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height"`
	Rotation       float64 `json:"rotation"`
}

// CommitCalibration сохраняет завершённую сессию: либо для одной страницы,
// либо для всего документа (NULL-страница на каждом листе проекта, одной
// транзакцией).
func (h *TakeoffHandler) CommitCalibration(c fiber.Ctx) error {
	token := c.Params("token")
	session, ok := h.sessions.Get(token)
	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}

	var req commitCalibrationRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.ProjectID == "" || req.SheetID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "project_id and sheet_id required"})
	}

	scaleFactor, unit, err := session.Result()
	if err != nil {
		return fail(c, err)
	}

	ctx := context.Background()
	var records []models.Calibration

	switch req.Scope {
	case "document":
		sheets, err := h.repo.SheetsFor(ctx, req.ProjectID)
		if err != nil {
			return fail(c, err)
		}
		for _, s := range sheets {
			records = append(records, models.Calibration{
				ID:             uuid.NewString(),
				ProjectID:      req.ProjectID,
				SheetID:        s.ID,
				PageNumber:     nil,
				ScaleFactor:    scaleFactor,
				Unit:           unit,
				ViewportWidth:  req.ViewportWidth,
				ViewportHeight: req.ViewportHeight,
				Rotation:       req.Rotation,
			})
		}

	case "page", "":
		page := req.PageNumber
		records = append(records, models.Calibration{
			ID:             uuid.NewString(),
			ProjectID:      req.ProjectID,
			SheetID:        req.SheetID,
			PageNumber:     &page,
			ScaleFactor:    scaleFactor,
			Unit:           unit,
			ViewportWidth:  req.ViewportWidth,
			ViewportHeight: req.ViewportHeight,
			Rotation:       req.Rotation,
		})

	default:
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "scope must be page or document"})
	}

	if err := h.repo.SaveCalibrationBatch(ctx, records); err != nil {
		return fail(c, err)
	}
	for _, rec := range records {
		h.resolver.Invalidate(rec.ProjectID, rec.SheetID)
	}
	h.sessions.Close(token)

	log.Printf("[CALIBRATION] Committed: scale=%.6f unit=%s scope=%s", scaleFactor, unit, req.Scope)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"scale_factor": scaleFactor,
		"unit":         unit,
		"records":      len(records),
	})
}

// CancelCalibration отменяет сессию из любого состояния, ничего не
// сохраняя.
func (h *TakeoffHandler) CancelCalibration(c fiber.Ctx) error {
	h.sessions.Close(c.Params("token"))
	return c.SendStatus(http.StatusNoContent)
}

// ResolveCalibration возвращает применимую калибровку (страница
// перекрывает документ).
func (h *TakeoffHandler) ResolveCalibration(c fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))

	cal, err := h.resolver.Resolve(context.Background(), c.Params("id"), c.Params("sheetId"), page)
	if err != nil {
		return fail(c, err)
	}
	if cal == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "sheet not calibrated"})
	}
	return c.JSON(cal)
}

// ============================================================
// Measurements
// ============================================================

type createMeasurementRequest struct {
	SheetID     string                 `json:"sheet_id"`
	ConditionID string                 `json:"condition_id"`
	Page        int                    `json:"page"`
	Points      []models.Point         `json:"points"` // screen pixels
	Viewport    geometry.ViewportState `json:"viewport"`
}

// CreateMeasurement конвертирует клики в page space, считает величину по
// разрешённой калибровке и атомарно сохраняет измерение.
func (h *TakeoffHandler) CreateMeasurement(c fiber.Ctx) error {
	var req createMeasurementRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.SheetID == "" || req.ConditionID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "sheet_id and condition_id required"})
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	ctx := context.Background()
	projectID := c.Params("id")

	cond, err := h.repo.ConditionByID(ctx, req.ConditionID)
	if err != nil {
		return fail(c, err)
	}

	cal, err := h.resolver.Resolve(ctx, projectID, req.SheetID, req.Page)
	if err != nil {
		return fail(c, err)
	}
	if cal == nil {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "sheet not calibrated"})
	}

	pagePoints, err := geometry.ToPageSpaceAll(req.Points, req.Viewport)
	if err != nil {
		return fail(c, err)
	}

	value, err := geometry.Compute(cond.Type, pagePoints, cal.ScaleFactor, cond)
	if err != nil {
		return fail(c, err)
	}

	m := models.Measurement{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		SheetID:         req.SheetID,
		ConditionID:     cond.ID,
		Type:            cond.Type,
		Points:          pagePoints,
		CalculatedValue: value.Calculated,
		PerimeterValue:  value.Perimeter,
		Unit:            cond.Unit,
		PDFPage:         req.Page,
	}
	if err := h.repo.SaveMeasurement(ctx, m); err != nil {
		return fail(c, err)
	}

	log.Printf("[TAKEOFF] Measurement %s: type=%s value=%.4f %s", m.ID, m.Type, m.CalculatedValue, m.Unit)
	return c.Status(http.StatusCreated).JSON(m)
}

// DeleteMeasurement удаляет измерение вместе с леджером вырезов.
func (h *TakeoffHandler) DeleteMeasurement(c fiber.Ctx) error {
	if err := h.repo.DeleteMeasurement(context.Background(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// ============================================================
// Cutouts
// ============================================================

type cutoutRequest struct {
	Points   []models.Point         `json:"points"` // screen pixels
	Viewport geometry.ViewportState `json:"viewport"`
}

// ApplyCutout вычитает нарисованный полигон из измерения через леджер
// вычетов и возвращает новый net (с предупреждением при обрезке до нуля).
func (h *TakeoffHandler) ApplyCutout(c fiber.Ctx) error {
	var req cutoutRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}

	ctx := context.Background()
	measurementID := c.Params("id")

	m, err := h.repo.Measurement(ctx, measurementID)
	if err != nil {
		return fail(c, err)
	}

	cal, err := h.resolver.Resolve(ctx, m.ProjectID, m.SheetID, m.PDFPage)
	if err != nil {
		return fail(c, err)
	}
	if cal == nil {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "sheet not calibrated"})
	}

	pagePoints, err := geometry.ToPageSpaceAll(req.Points, req.Viewport)
	if err != nil {
		return fail(c, err)
	}

	result, err := h.cutouts.Apply(ctx, measurementID, pagePoints, cal.ScaleFactor)
	if err != nil {
		return fail(c, err)
	}

	if result.Warning != "" {
		log.Printf("[TAKEOFF] Cutout warning on %s: %s", measurementID, result.Warning)
	}
	return c.JSON(result)
}

// ============================================================
// Report
// ============================================================

// GetReport агрегирует проект: итоги по условиям, постраничный drill-down
// и смета.
func (h *TakeoffHandler) GetReport(c fiber.Ctx) error {
	report, err := h.aggregator.AggregateProject(context.Background(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(report)
}
