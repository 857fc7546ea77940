package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/database"
	"github.com/camden-git/entomobackend/models"
	"github.com/camden-git/entomobackend/repository"
	"github.com/camden-git/entomobackend/services"
)

// UploadHandler serves the server side of the editor: seeds in, changesets
// out, plus upload registration and verification reports.
type UploadHandler struct {
	Uploads    repository.UploadRepositoryInterface
	Detections repository.DetectionRepositoryInterface
	Backend    *services.LocalBackend
	SQL        *sql.DB
	Log        *slog.Logger
}

type modelDetection struct {
	Label      annotation.Label       `json:"label"`
	Confidence float64                `json:"confidence"`
	Box        annotation.BoundingBox `json:"boundingBox"`
}

func (uh *UploadHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename   string           `json:"filename"`
		Width      int              `json:"width"`
		Height     int              `json:"height"`
		Detections []modelDetection `json:"detections"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	log := loggerFrom(r, uh.Log)

	if req.Filename == "" || req.Width < 0 || req.Height < 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_upload", "filename is required and size must not be negative")
		return
	}
	for i, d := range req.Detections {
		if !d.Label.Valid() {
			WriteAPIError(w, http.StatusUnprocessableEntity, "invalid_input", "detection "+strconv.Itoa(i)+": unknown label")
			return
		}
	}

	upload := models.Upload{Filename: req.Filename, Width: req.Width, Height: req.Height}
	if err := uh.Uploads.Create(&upload); err != nil {
		log.Error("error creating upload", "filename", req.Filename, "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to create upload")
		return
	}

	rows := make([]models.Detection, 0, len(req.Detections))
	for _, d := range req.Detections {
		rows = append(rows, models.Detection{
			UploadID:           upload.ID,
			Label:              string(d.Label),
			Confidence:         d.Confidence,
			OriginalConfidence: d.Confidence,
			XMin:               d.Box.XMin,
			YMin:               d.Box.YMin,
			XMax:               d.Box.XMax,
			YMax:               d.Box.YMax,
			Status:             string(annotation.StatusModelGenerated),
		})
	}
	if err := uh.Detections.CreateBatch(rows); err != nil {
		if errors.Is(err, annotation.ErrInvalid) {
			writeDomainError(w, log, err)
			return
		}
		log.Error("error storing model detections", "upload_id", upload.ID, "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to store detections")
		return
	}

	log.Info("upload registered", "upload_id", upload.ID, "detections", len(rows))
	writeJSON(w, http.StatusCreated, upload.ToAnnotation())
}

func (uh *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := uh.Uploads.ListAll()
	if err != nil {
		writeDomainError(w, loggerFrom(r, uh.Log), err)
		return
	}
	out := make([]annotation.Upload, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, u.ToAnnotation())
	}
	writeJSON(w, http.StatusOK, out)
}

func (uh *UploadHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := uploadIDParam(w, r)
	if !ok {
		return
	}
	upload, err := uh.Uploads.GetByID(uploadID)
	if err != nil {
		writeDomainError(w, loggerFrom(r, uh.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, upload.ToAnnotation())
}

// GetSeed returns the payload an editor opens an image with.
func (uh *UploadHandler) GetSeed(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := uploadIDParam(w, r)
	if !ok {
		return
	}
	seed, err := uh.Backend.LoadSeed(r.Context(), models.FormatID(uploadID))
	if err != nil {
		writeDomainError(w, loggerFrom(r, uh.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, seed)
}

// ApplyChangeset applies a client's changeset without any conflict checks.
func (uh *UploadHandler) ApplyChangeset(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := uploadIDParam(w, r)
	if !ok {
		return
	}
	var cs annotation.Changeset
	if !decodeJSON(w, r, &cs) {
		return
	}
	if cs.UploadID != "" && cs.UploadID != models.FormatID(uploadID) {
		WriteAPIError(w, http.StatusBadRequest, "upload_mismatch", "changeset uploadId does not match the URL")
		return
	}

	res, err := uh.Backend.SaveChangeset(r.Context(), models.FormatID(uploadID), cs)
	if err != nil {
		writeDomainError(w, loggerFrom(r, uh.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (uh *UploadHandler) GetVerificationReport(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := uploadIDParam(w, r)
	if !ok {
		return
	}
	log := loggerFrom(r, uh.Log)
	if _, err := uh.Uploads.GetByID(uploadID); err != nil {
		writeDomainError(w, log, err)
		return
	}
	report, err := database.GetVerificationReport(r.Context(), uh.SQL, uploadID)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func uploadIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := models.ParseID(chi.URLParam(r, "upload_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_upload_id", "Invalid upload ID format")
		return 0, false
	}
	return id, true
}
