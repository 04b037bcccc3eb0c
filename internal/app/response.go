package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/valyala/fasthttp"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"Failed to encode response"}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func methodNotAllowed(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	ctx.SetBodyString(`{"error":"Method not allowed"}`)
}

func notFound(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusNotFound)
	ctx.SetBodyString(`{"error":"Not found"}`)
}

func invalidJSON(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusBadRequest)
	ctx.SetBodyString(`{"error":"Invalid JSON"}`)
}

func decode(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		invalidJSON(ctx)
		return false
	}
	return true
}

// writeError maps the error taxonomy onto HTTP statuses.
func (app *Application) writeError(ctx *fasthttp.RequestCtx, err error) {
	var (
		validation *errs.ValidationError
		decline    *errs.DeclineError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: validation.Error(), Field: validation.Field})
	case errors.As(err, &decline):
		writeJSON(ctx, fasthttp.StatusPaymentRequired, errorResponse{Error: decline.Message})
	case errors.Is(err, errs.ErrUnauthorized):
		writeJSON(ctx, fasthttp.StatusUnauthorized, errorResponse{Error: "Invalid or missing API key"})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(ctx, fasthttp.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrExpired):
		writeJSON(ctx, fasthttp.StatusGone, errorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrStateConflict):
		writeJSON(ctx, fasthttp.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrQueueFull):
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, errorResponse{Error: "Service busy, try again"})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeJSON(ctx, fasthttp.StatusGatewayTimeout, errorResponse{Error: "Request timed out"})
	default:
		app.logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		writeJSON(ctx, fasthttp.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func apiKey(ctx *fasthttp.RequestCtx) string {
	if key := ctx.Request.Header.Peek("X-Api-Key"); len(key) > 0 {
		return string(key)
	}
	auth := string(ctx.Request.Header.Peek("Authorization"))
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// authenticate resolves the caller's credential, writing a 401 when it cannot.
func (app *Application) authenticate(ctx *fasthttp.RequestCtx) (*models.Credential, bool) {
	c, cancel := app.requestContext(ctx)
	defer cancel()

	cred, err := app.services.Credentials.Validate(c, apiKey(ctx))
	if err != nil {
		app.writeError(ctx, err)
		return nil, false
	}
	return cred, true
}

func (app *Application) authorizeAdmin(ctx *fasthttp.RequestCtx) bool {
	if app.config.AdminToken == "" {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString(`{"error":"Admin API disabled"}`)
		return false
	}

	token := ctx.Request.Header.Peek("X-Admin-Token")
	if subtle.ConstantTimeCompare(token, []byte(app.config.AdminToken)) != 1 {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString(`{"error":"Invalid admin token"}`)
		return false
	}
	return true
}
