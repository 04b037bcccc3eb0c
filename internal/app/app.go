package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/config"
	"github.com/mochaeng/payment-sandbox/internal/services"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/valyala/fasthttp"
)

const (
	sessionsPath    = "/v1/checkout/sessions"
	webhooksPath    = "/v1/webhooks"
	credentialsPath = "/v1/admin/credentials"
)

type Application struct {
	config   *config.Config
	services *services.Service
	store    store.Store
	logger   *slog.Logger
}

func NewApp(config *config.Config, services *services.Service, store store.Store, logger *slog.Logger) *Application {
	if logger == nil {
		logger = slog.Default()
	}
	return &Application{
		config:   config,
		services: services,
		store:    store,
		logger:   logger.With("component", "http"),
	}
}

func (app *Application) Mount() *fasthttp.Server {
	return &fasthttp.Server{
		Handler:      app.route,
		Name:         "payment-sandbox",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}
}

func (app *Application) Run(server *fasthttp.Server) error {
	app.logger.Info("starting server", "port", app.config.Port)
	return server.ListenAndServe(":" + app.config.Port)
}

func (app *Application) route(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	path := string(ctx.Path())
	switch path {
	case "/health":
		if ctx.IsGet() {
			app.healthHandler(ctx)
		} else {
			methodNotAllowed(ctx)
		}
	case sessionsPath:
		switch {
		case ctx.IsPost():
			app.createSessionHandler(ctx)
		case ctx.IsGet():
			app.listSessionsHandler(ctx)
		default:
			methodNotAllowed(ctx)
		}
	case webhooksPath:
		switch {
		case ctx.IsPost():
			app.createWebhookHandler(ctx)
		case ctx.IsGet():
			app.listWebhooksHandler(ctx)
		default:
			methodNotAllowed(ctx)
		}
	case webhooksPath + "/verify":
		if ctx.IsPost() {
			app.verifySignatureHandler(ctx)
		} else {
			methodNotAllowed(ctx)
		}
	case "/v1/summary":
		if ctx.IsGet() {
			app.summaryHandler(ctx)
		} else {
			methodNotAllowed(ctx)
		}
	default:
		switch {
		case strings.HasPrefix(path, sessionsPath+"/"):
			app.routeSession(ctx, segments(path, sessionsPath))
		case strings.HasPrefix(path, webhooksPath+"/"):
			app.routeWebhook(ctx, segments(path, webhooksPath))
		case strings.HasPrefix(path, credentialsPath+"/"):
			app.routeCredential(ctx, segments(path, credentialsPath))
		default:
			notFound(ctx)
		}
	}
}

func (app *Application) routeSession(ctx *fasthttp.RequestCtx, parts []string) {
	switch {
	case len(parts) == 1 && ctx.IsGet():
		app.getSessionHandler(ctx, parts[0])
	case len(parts) == 2 && parts[1] == "pay" && ctx.IsPost():
		app.payHandler(ctx, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && ctx.IsPost():
		app.cancelSessionHandler(ctx, parts[0])
	case len(parts) == 2 && parts[1] == "refund" && ctx.IsPost():
		app.refundSessionHandler(ctx, parts[0])
	case len(parts) == 1 || len(parts) == 2 && isAction(parts[1], "pay", "cancel", "refund"):
		methodNotAllowed(ctx)
	default:
		notFound(ctx)
	}
}

func (app *Application) routeWebhook(ctx *fasthttp.RequestCtx, parts []string) {
	switch {
	case len(parts) == 1 && ctx.IsGet():
		app.getWebhookHandler(ctx, parts[0])
	case len(parts) == 1 && ctx.IsPost():
		app.updateWebhookHandler(ctx, parts[0])
	case len(parts) == 1 && ctx.IsDelete():
		app.deleteWebhookHandler(ctx, parts[0])
	case len(parts) == 2 && parts[1] == "secret" && ctx.IsPost():
		app.regenerateWebhookSecretHandler(ctx, parts[0])
	case len(parts) == 2 && parts[1] == "test" && ctx.IsPost():
		app.testWebhookHandler(ctx, parts[0])
	case len(parts) == 1 || len(parts) == 2 && isAction(parts[1], "secret", "test"):
		methodNotAllowed(ctx)
	default:
		notFound(ctx)
	}
}

func (app *Application) routeCredential(ctx *fasthttp.RequestCtx, parts []string) {
	if !app.authorizeAdmin(ctx) {
		return
	}

	switch {
	case len(parts) == 1 && ctx.IsGet():
		app.getCredentialHandler(ctx, parts[0])
	case len(parts) == 1 && ctx.IsPost():
		app.issueCredentialHandler(ctx, parts[0])
	case len(parts) == 1 && ctx.IsDelete():
		app.deactivateCredentialHandler(ctx, parts[0])
	case len(parts) == 2 && parts[1] == "regenerate" && ctx.IsPost():
		app.regenerateCredentialHandler(ctx, parts[0])
	case len(parts) == 2 && parts[1] == "webhook" && ctx.IsPost():
		app.setCredentialWebhookHandler(ctx, parts[0])
	case len(parts) == 1 || len(parts) == 2 && isAction(parts[1], "regenerate", "webhook"):
		methodNotAllowed(ctx)
	default:
		notFound(ctx)
	}
}

func (app *Application) healthHandler(ctx *fasthttp.RequestCtx) {
	c, cancel := app.requestContext(ctx)
	defer cancel()

	if err := app.store.Ping(c); err != nil {
		app.logger.Error("health check failed", "error", err)
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetBodyString(`{"status":"unavailable"}`)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString(`{"status":"ok"}`)
}

// requestContext bounds store-only handlers by the configured request timeout.
func (app *Application) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	timeout := app.config.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func segments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func isAction(part string, actions ...string) bool {
	for _, a := range actions {
		if part == a {
			return true
		}
	}
	return false
}
