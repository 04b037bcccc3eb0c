package app

import (
	"time"

	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/valyala/fasthttp"
)

func (app *Application) summaryHandler(ctx *fasthttp.RequestCtx) {
	cred, ok := app.authenticate(ctx)
	if !ok {
		return
	}

	from, err := parseTimeArg(ctx, "from")
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	to, err := parseTimeArg(ctx, "to")
	if err != nil {
		app.writeError(ctx, err)
		return
	}

	c, cancel := app.requestContext(ctx)
	defer cancel()

	summary, err := app.services.Summary.GetSummary(c, cred.OwnerID, from, to)
	if err != nil {
		app.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, summary)
}

func parseTimeArg(ctx *fasthttp.RequestCtx, name string) (*time.Time, error) {
	raw := ctx.QueryArgs().Peek(name)
	if len(raw) == 0 {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return nil, errs.Invalid(name, "must be an RFC3339 timestamp")
	}
	return &t, nil
}
