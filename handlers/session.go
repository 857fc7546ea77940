package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/services"
)

// SessionHandler exposes editor sessions: each session wraps one store and
// its save coordinator.
type SessionHandler struct {
	Sessions *services.SessionService
	Log      *slog.Logger
}

type sessionView struct {
	ID         string                  `json:"id"`
	Upload     annotation.Upload       `json:"upload"`
	Detections annotation.DetectionSet `json:"detections"`
	SelectedID string                  `json:"selectedId,omitempty"`
	CanUndo    bool                    `json:"canUndo"`
	CanRedo    bool                    `json:"canRedo"`
	Dirty      bool                    `json:"dirty"`
	Saving     bool                    `json:"saving"`
	Unresolved []string                `json:"unresolved,omitempty"`
}

func viewOf(sess *services.Session) sessionView {
	s := sess.Store
	return sessionView{
		ID:         sess.ID,
		Upload:     s.Upload(),
		Detections: s.Detections(),
		SelectedID: s.Selected(),
		CanUndo:    s.CanUndo(),
		CanRedo:    s.CanRedo(),
		Dirty:      s.IsDirty(),
		Saving:     s.Saving(),
		Unresolved: s.Unresolved(),
	}
}

func (sh *SessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UploadID string `json:"uploadId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UploadID == "" {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "uploadId is required")
		return
	}
	sess, err := sh.Sessions.Open(r.Context(), req.UploadID)
	if err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (sh *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (sh *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := sh.Sessions.Close(chi.URLParam(r, "session_id")); err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (sh *SessionHandler) AddDetection(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	var in annotation.NewDetectionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	d, err := sess.Store.AddDetection(in)
	if err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (sh *SessionHandler) UpdateDetection(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	var p annotation.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	d, err := sess.Store.UpdateDetection(chi.URLParam(r, "detection_id"), p)
	if err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (sh *SessionHandler) ConfirmDetection(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	d, err := sess.Store.ConfirmDetection(chi.URLParam(r, "detection_id"))
	if err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (sh *SessionHandler) DeleteDetection(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	if err := sess.Store.DeleteDetection(chi.URLParam(r, "detection_id")); err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSelection selects a detection; an empty or missing id clears the selection.
func (sh *SessionHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	var req struct {
		DetectionID string `json:"detectionId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := sess.Store.SetSelected(req.DetectionID); err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type historyResponse struct {
	Applied bool        `json:"applied"`
	Session sessionView `json:"session"`
}

// Undo and Redo on an empty stack are not errors; Applied reports whether
// anything changed.
func (sh *SessionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	applied := sess.Store.Undo()
	writeJSON(w, http.StatusOK, historyResponse{Applied: applied, Session: viewOf(sess)})
}

func (sh *SessionHandler) Redo(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	applied := sess.Store.Redo()
	writeJSON(w, http.StatusOK, historyResponse{Applied: applied, Session: viewOf(sess)})
}

func (sh *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	sess.Store.ResetToBaseline()
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type saveResponse struct {
	Outcome annotation.SaveOutcome `json:"outcome"`
	Session sessionView            `json:"session"`
}

func (sh *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	outcome, err := sh.Sessions.Save(r.Context(), id)
	if err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	sess, err := sh.Sessions.Get(id)
	if err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Outcome: outcome, Session: viewOf(sess)})
}

// Reconcile matches detections created by an earlier save against the
// server's current rows.
func (sh *SessionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if err := sh.Sessions.Reconcile(r.Context(), id); err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return
	}
	sess, ok := sh.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (sh *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	sess, err := sh.Sessions.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		writeDomainError(w, loggerFrom(r, sh.Log), err)
		return nil, false
	}
	return sess, true
}
