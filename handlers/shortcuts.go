package handlers

import (
	"net/http"

	"github.com/camden-git/entomobackend/config"
)

// ListShortcuts serves the editor's keyboard shortcut table.
func ListShortcuts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.DefaultShortcuts())
}
