package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mount registers the API under r. ws may be nil when realtime events are
// disabled.
func Mount(r chi.Router, uploads *UploadHandler, sessions *SessionHandler, ws http.HandlerFunc) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", uploads.CreateUpload)
			r.Get("/", uploads.ListUploads)
			r.Route("/{upload_id}", func(r chi.Router) {
				r.Get("/", uploads.GetUpload)
				r.Get("/detections", uploads.GetSeed)
				r.Post("/changeset", uploads.ApplyChangeset)
				r.Get("/verification", uploads.GetVerificationReport)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessions.OpenSession)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", sessions.GetSession)
				r.Delete("/", sessions.CloseSession)
				r.Post("/detections", sessions.AddDetection)
				r.Route("/detections/{detection_id}", func(r chi.Router) {
					r.Patch("/", sessions.UpdateDetection)
					r.Delete("/", sessions.DeleteDetection)
					r.Post("/confirm", sessions.ConfirmDetection)
				})
				r.Put("/selection", sessions.SetSelection)
				r.Post("/undo", sessions.Undo)
				r.Post("/redo", sessions.Redo)
				r.Post("/reset", sessions.Reset)
				r.Post("/save", sessions.Save)
				r.Post("/reconcile", sessions.Reconcile)
			})
		})

		r.Get("/shortcuts", ListShortcuts)
		if ws != nil {
			r.Get("/ws", ws)
		}
	})
}
