package app

import (
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/webhook"
	"github.com/valyala/fasthttp"
)

func (app *Application) createWebhookHandler(ctx *fasthttp.RequestCtx) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	var req models.CreateWebhookRequest
	if !decode(ctx, &req) {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	resp, err := app.services.Webhooks.Create(c, cred.OwnerID, req)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, resp)
}

func (app *Application) listWebhooksHandler(ctx *fasthttp.RequestCtx) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	views, err := app.services.Webhooks.List(c, cred.OwnerID)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, views)
}

func (app *Application) getWebhookHandler(ctx *fasthttp.RequestCtx, id string) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	sub, err := app.services.Webhooks.Get(c, cred.OwnerID, id)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sub.View())
}

func (app *Application) updateWebhookHandler(ctx *fasthttp.RequestCtx, id string) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	var req models.UpdateWebhookRequest
	if !decode(ctx, &req) {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	sub, err := app.services.Webhooks.Update(c, cred.OwnerID, id, req)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sub.View())
}

func (app *Application) deleteWebhookHandler(ctx *fasthttp.RequestCtx, id string) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	sub, err := app.services.Webhooks.Deactivate(c, cred.OwnerID, id)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sub.View())
}

func (app *Application) regenerateWebhookSecretHandler(ctx *fasthttp.RequestCtx, id string) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	resp, err := app.services.Webhooks.RegenerateSecret(c, cred.OwnerID, id)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

// testWebhookHandler waits for the single ping attempt, which is bounded by
// the dispatcher's per-attempt timeout rather than the request timeout.
func (app *Application) testWebhookHandler(ctx *fasthttp.RequestCtx, id string) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	report, err := app.services.Webhooks.Test(ctx, cred.OwnerID, id)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, report)
}

func (app *Application) verifySignatureHandler(ctx *fasthttp.RequestCtx) {
	var req models.VerifySignatureRequest
	if !decode(ctx, &req) {
		return
	}
	if req.Secret == "" || req.Signature == "" {
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: "payload, signature and secret are required"})
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{
		"valid": webhook.Verify([]byte(req.Payload), req.Signature, req.Secret),
	})
}
