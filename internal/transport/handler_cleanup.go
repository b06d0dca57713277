package transport

import (
	"net/http"
)

// HandleCleanup runs a session sweep on demand. The dry_run query parameter
// reports what would be removed without deleting anything.
func (h *Handlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"

	report, err := h.sweeper.RunWithOptions(r.Context(), dryRun)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
