package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cliniccare/pharmacy-backend/api/controllers"
	"github.com/cliniccare/pharmacy-backend/api/middleware"
	"github.com/cliniccare/pharmacy-backend/internal/cart"
	"github.com/cliniccare/pharmacy-backend/internal/inventory"
	"github.com/cliniccare/pharmacy-backend/internal/notifications"
	"github.com/cliniccare/pharmacy-backend/pkg/config"
	"github.com/cliniccare/pharmacy-backend/pkg/db"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/cliniccare/pharmacy-backend/pkg/redis"
	"github.com/cliniccare/pharmacy-backend/pkg/storage/gcs"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	pubsubP controllers.PubSubPinger,
	gcsP gcs.Pinger,
	inventoryService inventory.Service,
	cartService cart.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP, pubsubP, gcsP))
	})

	r.Get("/api/public/ping", controllers.PublicPing())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Post("/", controllers.CreateItem(inventoryService, logg))
			r.Get("/", controllers.ListItems(inventoryService, logg))
			r.Get("/search", controllers.SearchItems(inventoryService, logg))
			r.Get("/expired", controllers.ListExpiredItems(inventoryService, logg))
			r.Get("/non-expired", controllers.ListNonExpiredItems(inventoryService, logg))
			r.Get("/by-supplier", controllers.ListBySupplier(inventoryService, logg))
			r.Get("/low-stock", controllers.ListLowStockItems(inventoryService, logg))
			r.Get("/{itemId}", controllers.GetItem(inventoryService, logg))
			r.Patch("/{itemId}", controllers.UpdateItem(inventoryService, logg))
			r.Delete("/{itemId}", controllers.DeleteItem(inventoryService, logg))
			r.Post("/{itemId}/image", controllers.UploadItemImage(inventoryService, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.CustomerContext(logg))
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Post("/items", controllers.CartAddItem(cartService, logg))
			r.Put("/items/{itemId}", controllers.CartUpdateQuantity(cartService, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
