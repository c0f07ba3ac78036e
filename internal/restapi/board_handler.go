package restapi

import (
	"net/http"

	"github.com/metrosign/metrosign/internal/display"
	"github.com/metrosign/metrosign/internal/sign"
)

// BoardEntry is the data of /api/board.json.
type BoardEntry struct {
	Mode    string              `json:"mode"`
	Modes   []string            `json:"modes"`
	Heading string              `json:"heading"`
	Status  sign.Status         `json:"status"`
	Slots   []display.SlotState `json:"slots"`
}

func (api *RestAPI) boardHandler(w http.ResponseWriter, r *http.Request) {
	if api.Sign == nil || api.Board == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "sign not initialized")
		return
	}

	modes := api.Sign.Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = m.Name
	}

	api.sendResponse(w, r, http.StatusOK, BoardEntry{
		Mode:    api.Sign.Mode().Name,
		Modes:   names,
		Heading: api.SignConfig.HeadingText,
		Status:  api.Sign.Status(),
		Slots:   api.Board.Snapshot(),
	})
}
