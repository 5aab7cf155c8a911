// Package dependencies assembles the services a request handler needs and
// carries them on the request context. Long-lived state (the vault, the
// session store, the ledger) is built once in main and handed to the
// factory; everything request-scoped is constructed per request.
package dependencies

import (
	"context"
	"net/http"
	"time"

	"github.com/flashguard/flashguard/pkg/services"
	"github.com/flashguard/flashguard/pkg/vault"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// FlashAPIServices is the list of services the flash API depends on
type FlashAPIServices struct {
	SessionService services.SessionServiceInterface
	Vault          vault.VaultInterface
	Log            *log.Entry
}

// Factory owns the long-lived collaborators shared by every request
type Factory struct {
	Vault      vault.VaultInterface
	Store      *services.Store
	Accounting services.AccountingRecorder
	TTL        time.Duration
	Retention  time.Duration
}

// NewFactory builds the service factory from the process-wide collaborators
func NewFactory(v vault.VaultInterface, store *services.Store, accounting services.AccountingRecorder, ttl time.Duration, retention time.Duration) *Factory {
	return &Factory{
		Vault:      v,
		Store:      store,
		Accounting: accounting,
		TTL:        ttl,
		Retention:  retention,
	}
}

// Init creates the request-scoped service bundle
func (f *Factory) Init(ctx context.Context) *FlashAPIServices {
	logEntry := log.NewEntry(log.StandardLogger()).WithField("requestId", middleware.GetReqID(ctx))
	return &FlashAPIServices{
		SessionService: services.NewSessionService(ctx, logEntry, f.Vault, f.Store, f.Accounting, f.TTL, f.Retention),
		Vault:          f.Vault,
		Log:            logEntry,
	}
}

// NewSessionService builds a session authority outside a request context,
// used by the periodic sweeper
func (f *Factory) NewSessionService(ctx context.Context) services.SessionServiceInterface {
	logEntry := log.NewEntry(log.StandardLogger()).WithField("component", "sweeper")
	return services.NewSessionService(ctx, logEntry, f.Vault, f.Store, f.Accounting, f.TTL, f.Retention)
}

type servicesKeyType string

// servicesKey is the context key for dependencies on the request context
const servicesKey = servicesKeyType("services")

// Middleware attaches a fresh service bundle to every request
func (f *Factory) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		services := f.Init(r.Context())
		ctx := ContextWithServices(r.Context(), services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextWithServices adds the flash API services to context
func ContextWithServices(ctx context.Context, services *FlashAPIServices) context.Context {
	return context.WithValue(ctx, servicesKey, services)
}

// ServicesFromContext returns the flash API services from context
func ServicesFromContext(ctx context.Context) *FlashAPIServices {
	services, ok := ctx.Value(servicesKey).(*FlashAPIServices)
	if !ok {
		panic("no services found in context")
	}
	return services
}
