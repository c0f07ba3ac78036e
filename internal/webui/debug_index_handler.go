package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"github.com/metrosign/metrosign/internal/appconf"
	"github.com/metrosign/metrosign/internal/logging"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

const historyDumpLimit = 50

type debugData struct {
	Title string
	Pre   string
}

// redactedConfig hides secrets from the config dump.
type redactedConfig struct {
	App  appconf.Config
	Sign appconf.SignConfig
}

func writeDebugData(w http.ResponseWriter, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := debugTemplate.Execute(w, debugData{Title: title, Pre: spew.Sdump(data)})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}

	var (
		data  any
		title string
	)
	switch r.URL.Query().Get("dataType") {
	case "board":
		title = "Board - Slots"
		if webUI.Board != nil {
			data = webUI.Board.Snapshot()
		}
	case "status":
		title = "Sign - Last Refresh"
		if webUI.Sign != nil {
			data = webUI.Sign.Status()
		}
	case "history":
		title = "History - Recent Refresh Cycles"
		if webUI.History != nil {
			entries, err := webUI.History.Recent(r.Context(), historyDumpLimit)
			if err != nil {
				logging.LogError(logging.FromContext(r.Context()), "failed to load history for debug page", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			data = entries
		}
	case "config":
		title = "Configuration"
		data = redact(webUI.Config, webUI.SignConfig)
	default:
		title = "Choose a data type"
		data = map[string]string{
			"error": "Please use one of the following: board, status, history, config.",
		}
	}

	writeDebugData(w, title, data)
}

func redact(cfg appconf.Config, sc appconf.SignConfig) redactedConfig {
	const mask = "[redacted]"
	keys := make([]string, len(cfg.ApiKeys))
	for i := range keys {
		keys[i] = mask
	}
	cfg.ApiKeys = keys
	if sc.Train.APIKey != "" {
		sc.Train.APIKey = mask
	}
	if sc.Bus.APIKey != "" {
		sc.Bus.APIKey = mask
	}
	if sc.Realtime.Endpoint.APIKey != "" {
		sc.Realtime.Endpoint.APIKey = mask
	}
	return redactedConfig{App: cfg, Sign: sc}
}
