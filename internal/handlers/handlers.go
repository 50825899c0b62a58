package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/roadsign-api/internal/metrics"
	"github.com/Brownie44l1/roadsign-api/internal/model"
)

const formField = "file"

// rasterFormats are the sniffed upload types with a registered decoder.
var rasterFormats = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/webp",
}

func rasterFormat(mtype *mimetype.MIME) (string, bool) {
	for _, format := range rasterFormats {
		if mtype.Is(format) {
			return format, true
		}
	}
	return "", false
}

type Options struct {
	FrontendPath   string
	StaticDir      string
	MaxUploadBytes int64
}

type Handler struct {
	pipeline *model.Pipeline
	metrics  *metrics.Metrics
	opts     Options
}

func NewHandler(pipeline *model.Pipeline, m *metrics.Metrics, opts Options) *Handler {
	return &Handler{
		pipeline: pipeline,
		metrics:  m,
		opts:     opts,
	}
}

// predictResult is either a prediction or the error that prevented one.
type predictResult struct {
	result model.PredictionResult
	err    error
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.respond(w, h.predict(w, r))
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) predictResult {
	img, err := h.readImage(w, r)
	if err != nil {
		return predictResult{err: err}
	}

	start := time.Now()
	result, err := h.pipeline.Predict(img)
	if err != nil {
		return predictResult{err: fmt.Errorf("predict: %w", err)}
	}

	label := ""
	if result.Label != nil {
		label = *result.Label
	}
	h.metrics.ObservePrediction(label, result.IsTrafficSign, float64(result.Confidence), time.Since(start).Seconds())

	return predictResult{result: result}
}

// readImage extracts the uploaded file and decodes it into RGB.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) (image.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errFileTooLarge
		}
		return nil, errFileRequired
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile(formField)
	if err != nil {
		return nil, errFileRequired
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return nil, fmt.Errorf("sniff upload: %w", err)
	}
	format, ok := rasterFormat(mtype)
	if !ok {
		return nil, errUnsupportedType
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	img, _, err := image.Decode(file)
	if err != nil || img.Bounds().Empty() {
		return nil, errInvalidImage
	}
	h.metrics.ObserveUpload(format)

	return model.ToRGB(img), nil
}

func (h *Handler) respond(w http.ResponseWriter, res predictResult) {
	if res.err == nil {
		respondJSON(w, res.result, http.StatusOK)
		return
	}

	var verr *ValidationError
	if errors.As(res.err, &verr) {
		h.metrics.ObserveRejection(verr.reason)
		respondError(w, verr.Message, verr.Status)
		return
	}

	h.metrics.ObserveFailure()
	log.Error().Err(res.err).Msg("prediction failed")
	respondError(w, msgPredictionFailed, http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
