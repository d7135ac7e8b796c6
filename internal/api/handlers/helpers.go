package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "checkvibe/internal/api/context"
	"checkvibe/internal/engine/authz"
)

func authCtx(r *http.Request) *authz.Context {
	c, _ := r.Context().Value(apiContext.Auth).(*authz.Context)
	return c
}

func param(r *http.Request, name string) string {
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return ps.ByName(name)
}
