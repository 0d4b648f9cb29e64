package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authstate"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services groups the marketplace services the routes delegate to.
type Services struct {
	Companies     *service.CompanyService
	Opportunities *service.OpportunityService
	Applications  *service.ApplicationService
	Notifications *service.NotificationService
	Messaging     *service.MessagingService
	Onboarding    *service.OnboardingService
	Profiles      *service.ProfileService
}

// HealthCheck checks one dependency for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins   []string
	SecureCookie     bool
	OAuthWaitTimeout time.Duration
	HealthChecks     []HealthCheck
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(registry *authstate.Registry, svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	if opts.OAuthWaitTimeout <= 0 {
		opts.OAuthWaitTimeout = 8 * time.Second
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.HealthChecks, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/auth", authMetricsHandler(metrics))

		r.Group(func(r chi.Router) {
			r.Use(ClientMiddleware(registry, opts.SecureCookie, logger))

			// =============================================
			// 1. Sesión
			// =============================================
			r.Get("/session", getSessionHandler())
			r.Get("/session/events", sessionEventsHandler(logger))

			// =============================================
			// 2. Autenticación
			// =============================================
			r.Post("/auth/signup", signUpHandler(logger))
			r.Post("/auth/signin", signInHandler(opts.OAuthWaitTimeout, logger))
			r.Post("/auth/signout", signOutHandler())
			r.Post("/auth/refresh", refreshHandler(logger))
			r.Post("/auth/oauth/start", oauthStartHandler(logger))
			r.Get("/auth/oauth/callback", oauthCallbackHandler(opts.OAuthWaitTimeout, logger))
			r.Get("/auth/oauth/wait", oauthWaitHandler(opts.OAuthWaitTimeout))
			r.Post("/auth/password/reset", passwordResetHandler(logger))

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(logger))

				r.Put("/auth/password", passwordUpdateHandler(logger))

				// =============================================
				// 3. Perfil y tipo de usuario
				// =============================================
				r.Put("/profile", updateProfileHandler(logger))
				r.Post("/profile/avatar", uploadAvatarHandler(svc.Profiles, logger))
				r.Post("/profile/video", uploadVideoHandler(svc.Profiles, logger))
				r.Post("/user-type", switchUserTypeHandler(logger))

				// =============================================
				// 4. Empresas y membresías
				// =============================================
				r.Get("/companies", listCompaniesHandler())
				r.Post("/companies", createCompanyHandler(logger))
				r.Put("/companies/active", switchCompanyHandler(logger))
				r.Put("/companies/{companyId}", updateCompanyHandler(logger))
				r.Post("/companies/{companyId}/logo", uploadLogoHandler(svc.Companies, logger))
				r.Get("/companies/{companyId}/members", listMembersHandler(svc.Companies, logger))
				r.Post("/companies/{companyId}/join-requests", requestJoinHandler(svc.Companies, logger))
				r.Post("/companies/{companyId}/members/{userId}/approve", approveMemberHandler(svc.Companies, logger))
				r.Post("/companies/{companyId}/members/{userId}/decline", declineMemberHandler(svc.Companies, logger))
				r.Post("/invitations/{token}/accept", acceptInvitationHandler(svc.Companies, logger))

				// =============================================
				// 5. Oportunidades
				// =============================================
				r.Get("/opportunities", listOpportunitiesHandler(svc.Opportunities, logger))
				r.Post("/opportunities", createOpportunityHandler(svc.Opportunities, logger))
				r.Get("/opportunities/{opportunityId}", getOpportunityHandler(svc.Opportunities, logger))
				r.Put("/opportunities/{opportunityId}", updateOpportunityHandler(svc.Opportunities, logger))
				r.Delete("/opportunities/{opportunityId}", deleteOpportunityHandler(svc.Opportunities, logger))
				r.Post("/opportunities/{opportunityId}/close", closeOpportunityHandler(svc.Opportunities, logger))
				r.Get("/opportunities/{opportunityId}/draft", getDraftHandler(svc.Opportunities, logger))
				r.Put("/opportunities/{opportunityId}/draft", saveDraftHandler(svc.Opportunities, logger))
				r.Delete("/opportunities/{opportunityId}/draft", discardDraftHandler(svc.Opportunities, logger))

				// =============================================
				// 6. Postulaciones
				// =============================================
				r.Post("/opportunities/{opportunityId}/applications", applyHandler(svc.Applications, logger))
				r.Get("/opportunities/{opportunityId}/applications", listApplicationsHandler(svc.Applications, logger))
				r.Put("/applications/{applicationId}/status", updateApplicationStatusHandler(svc.Applications, logger))
				r.Get("/me/applications", myApplicationsHandler(svc.Applications, logger))

				// =============================================
				// 7. Notificaciones
				// =============================================
				r.Get("/notifications", listNotificationsHandler(svc.Notifications, logger))
				r.Get("/notifications/unread-count", unreadCountHandler(svc.Notifications, logger))
				r.Post("/notifications/read-all", markAllReadHandler(svc.Notifications, logger))
				r.Post("/notifications/{notificationId}/read", markReadHandler(svc.Notifications, logger))

				// =============================================
				// 8. Mensajes
				// =============================================
				r.Get("/conversations", listConversationsHandler(svc.Messaging, logger))
				r.Post("/conversations", startConversationHandler(svc.Messaging, logger))
				r.Get("/conversations/{conversationId}/messages", listMessagesHandler(svc.Messaging, logger))
				r.Post("/conversations/{conversationId}/messages", sendMessageHandler(svc.Messaging, logger))
				r.Post("/conversations/{conversationId}/read", markConversationReadHandler(svc.Messaging, logger))

				// =============================================
				// 9. Onboarding
				// =============================================
				r.Get("/onboarding/{flow}", onboardingStateHandler(svc.Onboarding, logger))
				r.Put("/onboarding/{flow}", onboardingDraftHandler(svc.Onboarding, logger))
				r.Post("/onboarding/{flow}/advance", onboardingAdvanceHandler(svc.Onboarding, logger))
				r.Post("/onboarding/{flow}/back", onboardingBackHandler(svc.Onboarding, logger))
				r.Post("/onboarding/{flow}/complete", onboardingCompleteHandler(svc.Onboarding, logger))
			})
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "marketplace-bff", Status: "healthy", LastChecked: now},
		}
		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			start := time.Now()
			err := c.Check(ctx)
			cancel()

			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("health check failed", zap.String("dependency", c.Name), zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: c.Name, Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func authMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetAuthSnapshot())
	}
}
