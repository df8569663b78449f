package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/septivank/ev-telemetry-engine/internal/db"
	"github.com/septivank/ev-telemetry-engine/internal/service"
	"github.com/septivank/ev-telemetry-engine/internal/validator"
	"go.uber.org/zap"
)

// Ingestor validates and ingests raw device telemetry
type Ingestor interface {
	IngestMeterTelemetry(ctx context.Context, requestID string, t validator.MeterTelemetry, receivedAt time.Time) (service.Receipt, error)
	IngestVehicleTelemetry(ctx context.Context, requestID string, t validator.VehicleTelemetry, receivedAt time.Time) (service.Receipt, error)
}

// StatusReader serves current device status
type StatusReader interface {
	GetMeterStatus(ctx context.Context, meterID string) (*db.MeterStatus, error)
	GetVehicleStatus(ctx context.Context, vehicleID string) (*db.VehicleStatus, error)
}

// Analytics serves efficiency summaries
type Analytics interface {
	GetVehiclePerformance(ctx context.Context, vehicleID string) (*service.PerformanceSummary, error)
	GetFleetSummary(ctx context.Context) (*service.FleetSummary, error)
}

// Services bundles what the handlers need
type Services struct {
	Ingestor  Ingestor
	Status    StatusReader
	Analytics Analytics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

// envelope is the response body of every endpoint
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

// NewApp creates the fiber application with every route registered
func NewApp(svcs Services) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(envelope{Success: false, Message: err.Error()})
		},
	})
	app.Use(requestid.New())
	app.Use(cors.New())

	Register(app, svcs)
	return app
}

// Register mounts the telemetry, analytics and operational routes
func Register(app *fiber.App, svcs Services) {
	h := &handlers{svcs: svcs, logger: svcs.Logger}

	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	if svcs.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(svcs.Gatherer, promhttp.HandlerOpts{})))
	}

	telemetry := app.Group("/v1/telemetry")
	telemetry.Post("/meter", h.ingestMeter)
	telemetry.Post("/vehicle", h.ingestVehicle)
	telemetry.Get("/meter/:meterId/status", h.meterStatus)
	telemetry.Get("/vehicle/:vehicleId/status", h.vehicleStatus)

	analytics := app.Group("/v1/analytics")
	analytics.Get("/performance/:vehicleId", h.performance)
	analytics.Get("/fleet", h.fleet)
}

type handlers struct {
	svcs   Services
	logger *zap.Logger
}

func (h *handlers) ingestMeter(c *fiber.Ctx) error {
	var body validator.MeterTelemetry
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, &validator.ValidationError{Reason: "malformed JSON body"})
	}

	receipt, err := h.svcs.Ingestor.IngestMeterTelemetry(c.UserContext(), requestID(c), body, time.Now())
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(envelope{
		Success: true,
		Message: "Meter telemetry ingested successfully",
		Data: fiber.Map{
			"historyId": receipt.HistoryID,
			"meterId":   receipt.DeviceID,
			"timestamp": body.Timestamp,
		},
	})
}

func (h *handlers) ingestVehicle(c *fiber.Ctx) error {
	var body validator.VehicleTelemetry
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, &validator.ValidationError{Reason: "malformed JSON body"})
	}

	receipt, err := h.svcs.Ingestor.IngestVehicleTelemetry(c.UserContext(), requestID(c), body, time.Now())
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(envelope{
		Success: true,
		Message: "Vehicle telemetry ingested successfully",
		Data: fiber.Map{
			"historyId": receipt.HistoryID,
			"vehicleId": receipt.DeviceID,
			"timestamp": body.Timestamp,
		},
	})
}

func (h *handlers) meterStatus(c *fiber.Ctx) error {
	meterID := c.Params("meterId")
	status, err := h.svcs.Status.GetMeterStatus(c.UserContext(), meterID)
	if err != nil {
		return h.failNotFound(c, err, fmt.Sprintf("Meter %s not found", meterID))
	}
	return c.JSON(envelope{Success: true, Data: status})
}

func (h *handlers) vehicleStatus(c *fiber.Ctx) error {
	vehicleID := c.Params("vehicleId")
	status, err := h.svcs.Status.GetVehicleStatus(c.UserContext(), vehicleID)
	if err != nil {
		return h.failNotFound(c, err, fmt.Sprintf("Vehicle %s not found", vehicleID))
	}
	return c.JSON(envelope{Success: true, Data: status})
}

func (h *handlers) performance(c *fiber.Ctx) error {
	vehicleID := c.Params("vehicleId")
	summary, err := h.svcs.Analytics.GetVehiclePerformance(c.UserContext(), vehicleID)
	if err != nil {
		return h.failNotFound(c, err, fmt.Sprintf("Vehicle %s not found", vehicleID))
	}
	return c.JSON(envelope{Success: true, Data: summary})
}

func (h *handlers) fleet(c *fiber.Ctx) error {
	summary, err := h.svcs.Analytics.GetFleetSummary(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(envelope{Success: true, Data: summary})
}

func (h *handlers) failNotFound(c *fiber.Ctx, err error, message string) error {
	if errors.Is(err, service.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(envelope{Success: false, Message: message})
	}
	return h.fail(c, err)
}

// fail maps service errors onto HTTP statuses: validation 400, not found 404, anything else 500
func (h *handlers) fail(c *fiber.Ctx, err error) error {
	var vErr *validator.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(envelope{Success: false, Message: vErr.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(envelope{Success: false, Message: err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("request_id", requestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(envelope{Success: false, Message: "internal storage error"})
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
