package app

import (
	"github.com/valyala/fasthttp"
)

type setWebhookRequest struct {
	URL string `json:"url"`
}

func (app *Application) getCredentialHandler(ctx *fasthttp.RequestCtx, owner string) {
	c, cancel := app.requestContext(ctx)
	defer cancel()

	cred, err := app.services.Credentials.Get(c, owner)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, cred)
}

func (app *Application) issueCredentialHandler(ctx *fasthttp.RequestCtx, owner string) {
	c, cancel := app.requestContext(ctx)
	defer cancel()

	cred, err := app.services.Credentials.GetOrCreate(c, owner)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, cred)
}

func (app *Application) regenerateCredentialHandler(ctx *fasthttp.RequestCtx, owner string) {
	c, cancel := app.requestContext(ctx)
	defer cancel()

	cred, err := app.services.Credentials.Regenerate(c, owner)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, cred)
}

func (app *Application) deactivateCredentialHandler(ctx *fasthttp.RequestCtx, owner string) {
	c, cancel := app.requestContext(ctx)
	defer cancel()

	cred, err := app.services.Credentials.Deactivate(c, owner)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, cred)
}

func (app *Application) setCredentialWebhookHandler(ctx *fasthttp.RequestCtx, owner string) {
	var req setWebhookRequest
	if !decode(ctx, &req) {
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	cred, err := app.services.Credentials.SetWebhook(c, owner, req.URL)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, cred)
}
