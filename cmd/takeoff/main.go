package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"takeoff-engine/internal/common/config"
	"takeoff-engine/internal/common/middleware"
	"takeoff-engine/internal/takeoff/handlers"
	"takeoff-engine/internal/takeoff/repository"
	"takeoff-engine/internal/takeoff/service"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ============================================================
// Takeoff Service
// ============================================================

func main() {
	cfg := config.Load()

	db, err := repository.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	repo := repository.New(db)
	if err := repo.Init(context.Background(), cfg.MigrationsPath); err != nil {
		log.Fatalf("init db: %v", err)
	}

	sessions := service.NewSessionManager()
	resolver := service.NewResolver(repo)
	cutouts := service.NewCutoutEngine(repo)
	aggregator := service.NewAggregator(repo)
	takeoffHandler := handlers.NewTakeoffHandler(repo, sessions, resolver, cutouts, aggregator)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		AppName:      "Takeoff Service",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// ============================================================
	// Health Check Routes
	// ============================================================

	app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "alive"})
	})

	app.Get("/health/ready", func(c fiber.Ctx) error {
		if err := db.PingContext(context.Background()); err != nil {
			return c.Status(503).JSON(fiber.Map{"status": "db unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	// ============================================================
	// Projects & Sheets
	// ============================================================

	app.Post("/projects", takeoffHandler.CreateProject)
	app.Get("/projects/:id", takeoffHandler.GetProject)
	app.Post("/projects/:id/sheets", takeoffHandler.AddSheet)
	app.Get("/projects/:id/sheets", takeoffHandler.ListSheets)

	// ============================================================
	// Conditions
	// ============================================================

	app.Post("/projects/:id/conditions", takeoffHandler.CreateCondition)
	app.Get("/projects/:id/conditions", takeoffHandler.ListConditions)
	app.Delete("/conditions/:id", takeoffHandler.DeleteCondition)

	// ============================================================
	// Calibration
	// ============================================================

	app.Post("/calibration/sessions", takeoffHandler.OpenCalibrationSession)
	app.Post("/calibration/sessions/:token/distance", takeoffHandler.SetCalibrationDistance)
	app.Post("/calibration/sessions/:token/points", takeoffHandler.AddCalibrationPoint)
	app.Post("/calibration/sessions/:token/commit", takeoffHandler.CommitCalibration)
	app.Delete("/calibration/sessions/:token", takeoffHandler.CancelCalibration)
	app.Get("/projects/:id/sheets/:sheetId/calibration", takeoffHandler.ResolveCalibration)

	// ============================================================
	// Measurements & Cutouts
	// ============================================================

	app.Post("/projects/:id/measurements", takeoffHandler.CreateMeasurement)
	app.Delete("/measurements/:id", takeoffHandler.DeleteMeasurement)
	app.Post("/measurements/:id/cutouts", takeoffHandler.ApplyCutout)

	// ============================================================
	// Report
	// ============================================================

	app.Get("/projects/:id/report", takeoffHandler.GetReport)

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting Takeoff Service on %s (env: %s)", addr, cfg.Environment)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
