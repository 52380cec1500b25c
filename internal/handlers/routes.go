package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/permitcourse/course-backend/internal/middleware"
)

// Routes is every handler the API serves plus the settings the route table
// needs.
type Routes struct {
	Progress *ProgressHandler
	Course   *CourseHandler
	Payment  *PaymentHandler
	Admin    *AdminHandler
	Health   *HealthHandler

	JWTSecret      string
	AllowedOrigins []string
}

func (r Routes) Mount(app *fiber.App) {
	app.Get("/health", r.Health.Health)

	api := app.Group("/api", middleware.OriginAllowed(r.AllowedOrigins))

	// The payment processor authenticates with the shared webhook secret.
	api.Post("/payments/webhook", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
	}), r.Payment.Webhook)

	protected := api.Group("/", middleware.AuthRequired(r.JWTSecret))
	protected.Post("/progress/slides/start", r.Progress.StartSlide)
	protected.Post("/progress/slides/complete", r.Progress.CompleteSlide)
	protected.Get("/progress/slides/:slideId/required", r.Progress.RequiredSeconds)

	protected.Get("/courses/:courseId/summary", r.Progress.Summary)
	protected.Get("/courses/:courseId/status", r.Course.Status)
	protected.Post("/courses/:courseId/complete", r.Course.Complete)
	protected.Post("/courses/:courseId/exam", r.Course.Exam)
	protected.Get("/courses/:courseId/navigation", r.Course.Navigation)
	protected.Get("/courses/:courseId/timeline", r.Course.Timeline)

	admin := protected.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.Get("/courses/:courseId/submissions", r.Admin.ListSubmissions)
	admin.Get("/courses/:courseId/users/:userId/submissions/:auditId/receipt", r.Admin.Receipt)
}
