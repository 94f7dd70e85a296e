package craftgate

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/craftgate/internal/http/handlers/admin/invitecreate"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/admin/invitelist"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/admin/inviterevoke"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/admin/players"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/admin/servercommand"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/admin/vouchercreate"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/admin/voucherlist"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/admin/whitelistview"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/billingwebhook"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/minecraft/link"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/minecraft/linkcomplete"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/minecraft/nickname"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/minecraft/unlink"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/subscription/checkoutcreate"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/subscription/confirm"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/craftgate/internal/http/handlers/voucherredeem"
	"github.com/magabrotheeeer/craftgate/internal/http/middlewarectx"
	adminservice "github.com/magabrotheeeer/craftgate/internal/services/admin"
	authservice "github.com/magabrotheeeer/craftgate/internal/services/auth"
	checkoutservice "github.com/magabrotheeeer/craftgate/internal/services/checkout"
	minecraftservice "github.com/magabrotheeeer/craftgate/internal/services/minecraft"
	reconcilerservice "github.com/magabrotheeeer/craftgate/internal/services/reconciler"
	subservice "github.com/magabrotheeeer/craftgate/internal/services/subscription"
	voucherservice "github.com/magabrotheeeer/craftgate/internal/services/voucher"
)

// RouteServices собирает сервисы, нужные для регистрации маршрутов.
type RouteServices struct {
	Auth          *authservice.AuthService
	Subscription  *subservice.SubscriptionService
	Checkout      *checkoutservice.CheckoutService
	Reconciler    *reconcilerservice.ReconcilerService
	Voucher       *voucherservice.VoucherService
	Minecraft     *minecraftservice.MinecraftService
	Admin         *adminservice.AdminService
	WebhookSecret string
	ControlSecret string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc RouteServices) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, svc.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, svc.Auth).ServeHTTP)

		// Вебхук провайдера и колбэк игрового сервера авторизуются
		// своими секретами, не JWT
		r.Post("/billing/webhook", billingwebhook.New(logger, svc.Reconciler, svc.WebhookSecret).ServeHTTP)
		r.Post("/minecraft/link/complete", linkcomplete.New(logger, svc.Minecraft, svc.ControlSecret).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(svc.Auth, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))

			r.Get("/subscriptions/status", status.New(logger, svc.Subscription).ServeHTTP)
			r.Post("/subscriptions/checkout", checkoutcreate.New(logger, svc.Checkout).ServeHTTP)
			r.Post("/subscriptions/confirm/{billing_subscription_id}", confirm.New(logger, svc.Reconciler).ServeHTTP)
			r.Post("/subscriptions/cancel", cancel.New(logger, svc.Subscription).ServeHTTP)
			r.Post("/vouchers/redeem", voucherredeem.New(logger, svc.Voucher).ServeHTTP)
			r.Post("/minecraft/link", link.New(logger, svc.Minecraft).ServeHTTP)
			r.Delete("/minecraft/link", unlink.New(logger, svc.Minecraft).ServeHTTP)
			r.Put("/minecraft/nickname", nickname.New(logger, svc.Minecraft).ServeHTTP)

			// Операции администратора
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.AdminOnlyMiddleware(logger))
				r.Post("/admin/invites", invitecreate.New(logger, svc.Admin).ServeHTTP)
				r.Get("/admin/invites", invitelist.New(logger, svc.Admin).ServeHTTP)
				r.Delete("/admin/invites/{code}", inviterevoke.New(logger, svc.Admin).ServeHTTP)
				r.Post("/admin/vouchers", vouchercreate.New(logger, svc.Admin).ServeHTTP)
				r.Get("/admin/vouchers", voucherlist.New(logger, svc.Admin).ServeHTTP)
				r.Get("/admin/players", players.New(logger, svc.Admin).ServeHTTP)
				r.Get("/admin/whitelist", whitelistview.New(logger, svc.Admin).ServeHTTP)
				r.Post("/admin/server/command", servercommand.New(logger, svc.Admin).ServeHTTP)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
