package app

import (
	"errors"

	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/valyala/fasthttp"
)

func (app *Application) createSessionHandler(ctx *fasthttp.RequestCtx) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	var req models.CreateSessionRequest
	if !decode(ctx, &req) {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	resp, err := app.services.Sessions.Create(c, cred, req)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, resp)
}

func (app *Application) listSessionsHandler(ctx *fasthttp.RequestCtx) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	sessions, err := app.services.Sessions.List(c, cred.OwnerID)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	if sessions == nil {
		sessions = []*models.CheckoutSession{}
	}
	writeJSON(ctx, fasthttp.StatusOK, sessions)
}

func (app *Application) getSessionHandler(ctx *fasthttp.RequestCtx, id string) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	session, err := app.services.Sessions.GetOwned(c, cred.OwnerID, id)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, session)
}

// payHandler is unauthenticated: knowing the session id is what lets a
// customer pay it. It is not bounded by the request timeout because the
// simulated gateway latency can exceed it.
func (app *Application) payHandler(ctx *fasthttp.RequestCtx, id string) {
	var req models.PaymentRequest
	if !decode(ctx, &req) {
		return
	}

	result, err := app.services.Payments.Submit(ctx, id, req)
	if err != nil {
		var decline *errs.DeclineError
		if errors.As(err, &decline) {
			writeJSON(ctx, fasthttp.StatusPaymentRequired, app.services.Payments.DeclineResult(id, decline))
			return
		}
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, result)
}

func (app *Application) cancelSessionHandler(ctx *fasthttp.RequestCtx, id string) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	var req models.CancelRequest
	if !decode(ctx, &req) {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	session, err := app.services.Sessions.Cancel(c, cred.OwnerID, id, req.Reason)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, session)
}

func (app *Application) refundSessionHandler(ctx *fasthttp.RequestCtx, id string) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	var req models.RefundRequest
	if !decode(ctx, &req) {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	session, err := app.services.Sessions.Refund(c, cred.OwnerID, id, req.Amount)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, session)
}
