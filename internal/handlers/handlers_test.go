package handlers

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/roadsign-api/internal/metrics"
	"github.com/Brownie44l1/roadsign-api/internal/model"
)

type fakeClassifier struct {
	probs []float32
	err   error
	calls int
}

func (f *fakeClassifier) Classify(inputData []float32) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.probs...), nil
}

type testServer struct {
	handler    *Handler
	metrics    *metrics.Metrics
	classifier *fakeClassifier
}

func newTestServer(t *testing.T, classifier *fakeClassifier, opts Options) *testServer {
	t.Helper()

	labels, err := model.NewLabelTable([]string{"stop_sign", "speed_limit_60"})
	require.NoError(t, err)

	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.FrontendPath == "" {
		opts.FrontendPath = t.TempDir() + "/index.html"
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry, registry)
	pipeline := model.NewPipeline(labels, model.NewPreprocessor(model.DefaultMetadata(labels.Len())), classifier)

	return &testServer{
		handler:    NewHandler(pipeline, m, opts),
		metrics:    m,
		classifier: classifier,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.Routes().ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 220, G: 20, B: 60, A: uint8(x * 8)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, field string, content []byte, extra map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range extra {
		require.NoError(t, writer.WriteField(k, v))
	}
	if field != "" {
		part, err := writer.CreateFormFile(field, "upload.png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestPredict_Recognized(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{0.92, 0.08}}, Options{})

	rec := s.do(multipartRequest(t, "file", pngBytes(t), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"is_traffic_sign":true,"confidence":0.92,"label":"stop_sign","class_id":0}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Predictions.WithLabelValues(metrics.OutcomeRecognized)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ClassPredictions.WithLabelValues("stop_sign")))
}

func TestPredict_NotRecognized(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{0.55, 0.45}}, Options{})

	rec := s.do(multipartRequest(t, "file", pngBytes(t), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_traffic_sign":false,"confidence":0.55,"label":null,"class_id":null,"message":"Bukan traffic sign"}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Predictions.WithLabelValues(metrics.OutcomeNotRecognized)))
}

func TestPredict_Idempotent(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{0.1, 0.9}}, Options{})
	data := pngBytes(t)

	first := s.do(multipartRequest(t, "file", data, nil))
	second := s.do(multipartRequest(t, "file", data, nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestPredict_FileRequired(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{"empty form", func(t *testing.T) *http.Request {
			return multipartRequest(t, "", nil, nil)
		}},
		{"other fields only", func(t *testing.T) *http.Request {
			return multipartRequest(t, "", nil, map[string]string{"file": "not-a-file", "note": "hello"})
		}},
		{"wrong field name", func(t *testing.T) *http.Request {
			return multipartRequest(t, "image", pngBytes(t), nil)
		}},
		{"not multipart", func(t *testing.T) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"file":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			return req
		}},
		{"no body", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/predict", nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &fakeClassifier{probs: []float32{0.92, 0.08}}
			s := newTestServer(t, classifier, Options{})

			rec := s.do(tt.req(t))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"file field is required"}`, rec.Body.String())
			assert.Zero(t, classifier.calls)
		})
	}
}

func emptyGIFBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 0, 0), palette.Plan9), nil))
	return buf.Bytes()
}

func TestPredict_InvalidImage(t *testing.T) {
	valid := pngBytes(t)

	tests := []struct {
		name    string
		content []byte
		reason  string
	}{
		{"plain text", []byte("definitely not an image"), "unsupported_type"},
		{"empty file", []byte{}, "unsupported_type"},
		{"pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"), "unsupported_type"},
		{"svg", []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10"/></svg>`), "unsupported_type"},
		{"truncated png", valid[:40], "invalid_image"},
		{"zero pixel gif", emptyGIFBytes(t), "invalid_image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &fakeClassifier{probs: []float32{0.92, 0.08}}
			s := newTestServer(t, classifier, Options{})

			rec := s.do(multipartRequest(t, "file", tt.content, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"invalid image format"}`, rec.Body.String())
			assert.Zero(t, classifier.calls)
			assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Rejections.WithLabelValues(tt.reason)))
		})
	}
}

func TestPredict_RecordsSniffedFormat(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{0.92, 0.08}}, Options{})

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil))

	require.Equal(t, http.StatusOK, s.do(multipartRequest(t, "file", pngBytes(t), nil)).Code)
	require.Equal(t, http.StatusOK, s.do(multipartRequest(t, "file", jpg.Bytes(), nil)).Code)
	require.Equal(t, http.StatusOK, s.do(multipartRequest(t, "file", jpg.Bytes(), nil)).Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.UploadFormats.WithLabelValues("image/png")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.UploadFormats.WithLabelValues("image/jpeg")))
}

func TestPredict_NonFiniteClassifierOutput(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{float32(math.NaN()), 0.1}}, Options{})

	rec := s.do(multipartRequest(t, "file", pngBytes(t), nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"prediction failed"}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Failures))
}

func TestPredict_TooLarge(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{0.92, 0.08}}, Options{MaxUploadBytes: 1024})

	rec := s.do(multipartRequest(t, "file", bytes.Repeat([]byte{0xff}, 8192), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"file too large"}`, rec.Body.String())
}

func TestPredict_ClassifierFailure(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{err: errors.New("shape mismatch")}, Options{})

	rec := s.do(multipartRequest(t, "file", pngBytes(t), nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"prediction failed"}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Failures))
}

func TestPredict_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{0.92, 0.08}}, Options{})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/predict", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPredict_RejectionMetrics(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{0.92, 0.08}}, Options{})

	s.do(multipartRequest(t, "", nil, nil))
	s.do(multipartRequest(t, "file", []byte("nope"), nil))
	s.do(multipartRequest(t, "file", []byte("nope"), nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("missing_file")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("unsupported_type")))
}

func TestCORS_Preflight(t *testing.T) {
	s := newTestServer(t, &fakeClassifier{probs: []float32{0.92, 0.08}}, Options{})

	rec := s.do(httptest.NewRequest(http.MethodOptions, "/predict", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, s.classifier.calls)
}
