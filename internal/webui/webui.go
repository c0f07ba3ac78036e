// Package webui serves developer pages. They dump internal state with
// go-spew and are disabled in production.
package webui

import (
	"net/http"

	"github.com/metrosign/metrosign/internal/app"
)

type WebUI struct {
	*app.Application
}

func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/", webUI.debugIndexHandler)
}
