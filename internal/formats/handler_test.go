package formats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"brandkit-backend/internal/assets"
	"brandkit-backend/internal/imageconv"
	"brandkit-backend/internal/shared/auth"
	"brandkit-backend/internal/shared/server/middleware"
)

type fakeEnqueuer struct {
	calls     int
	assetID   string
	formats   []string
	requestID string
	err       error
}

func (f *fakeEnqueuer) EnqueuePrewarm(ctx context.Context, assetID string, formats []string, requestID string) error {
	f.calls++
	f.assetID = assetID
	f.formats = formats
	f.requestID = requestID
	return f.err
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1")
	api.Use(middleware.Auth("test"))
	h.RegisterRoutes(api)
	return r
}

func adminToken(t *testing.T) string {
	t.Helper()
	now := time.Now()
	token, err := auth.SignJWT(auth.Claims{
		Sub:  "admin-1",
		Role: auth.RoleAdmin,
		Iat:  now.Unix(),
		Exp:  now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return token
}

func doRequest(r http.Handler, method, target, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("X-Guest-Id", "guest-1")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHandlerResolve(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, pngAsset("H1"))
	r := newTestRouter(NewHandler(f.manager, nil, nil))

	rec := doRequest(r, http.MethodGet, "/api/v1/assets/H1/formats/WebP", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got resolveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := resolveResponse{AssetID: "H1", Format: "webp", URL: "https://blobs.test/assets/logo/H1/formats/webp.webp"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	rec = doRequest(r, http.MethodGet, "/api/v1/assets/H1/formats/webp?redirect=1", "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != want.URL {
		t.Fatalf("unexpected Location %q", loc)
	}
	if f.converter.callCount() != 1 {
		t.Fatalf("redirect should be served from cache, converter calls %d", f.converter.callCount())
	}
}

func TestHandlerResolveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		asset    *assets.Asset
		path     string
		setup    func(f *fixture)
		status   int
		code     string
		detailOp string
	}{
		{name: "missing asset", path: "/api/v1/assets/nope/formats/png", status: http.StatusNotFound, code: "asset_not_found", detailOp: "load"},
		{name: "unknown token", path: "/api/v1/assets/H2/formats/gif", status: http.StatusBadRequest, code: "unsupported_conversion", detailOp: "validate"},
		{
			name:   "vector to raster",
			asset:  &assets.Asset{ID: "H2", Category: "icon", FileType: "image/svg+xml", FileURL: "https://store/h2.svg"},
			path:   "/api/v1/assets/H2/formats/png",
			status: http.StatusBadRequest,
			code:   "unsupported_conversion",
		},
		{
			name:   "missing original url",
			asset:  &assets.Asset{ID: "H2", Category: "logo", FileType: "image/png"},
			path:   "/api/v1/assets/H2/formats/png",
			status: http.StatusConflict,
			code:   "original_url_missing",
		},
		{
			name:   "too large",
			asset:  ptr(pngAsset("H2")),
			path:   "/api/v1/assets/H2/formats/png",
			setup:  func(f *fixture) { f.converter.err = imageconv.ErrEncodedTooLarge },
			status: http.StatusRequestEntityTooLarge,
			code:   "encoded_too_large",
		},
		{
			name:   "undecodable",
			asset:  ptr(pngAsset("H2")),
			path:   "/api/v1/assets/H2/formats/jpg",
			setup:  func(f *fixture) { f.converter.err = imageconv.ErrDecodeFailed },
			status: http.StatusUnprocessableEntity,
			code:   "decode_failed",
		},
		{
			name:   "store failure",
			asset:  ptr(pngAsset("H2")),
			path:   "/api/v1/assets/H2/formats/jpg",
			setup:  func(f *fixture) { f.blobs.putErr = errors.New("bucket gone") },
			status: http.StatusBadGateway,
			code:   "store_write_failed",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tt.asset != nil {
				f.seed(t, *tt.asset)
			}
			if tt.setup != nil {
				tt.setup(f)
			}
			r := newTestRouter(NewHandler(f.manager, nil, nil))

			rec := doRequest(r, http.MethodGet, tt.path, "", nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Error.Code != tt.code {
				t.Fatalf("expected code %q, got %q", tt.code, body.Error.Code)
			}
			if tt.detailOp != "" && body.Error.Details["op"] != tt.detailOp {
				t.Fatalf("expected op %q in details, got %v", tt.detailOp, body.Error.Details)
			}
		})
	}
}

func TestHandlerNotConfigured(t *testing.T) {
	t.Parallel()

	r := newTestRouter(NewHandler(NewManager(Options{}), nil, nil))
	rec := doRequest(r, http.MethodGet, "/api/v1/assets/H3/formats/png", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Error.Code; code != "not_configured" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestHandlerInfoAndList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := pngAsset("H4")
	size := int64(2048)
	a.AvailableFormats = map[string]assets.FormatEntry{
		"jpg": {URL: "https://blobs.test/h4.jpg", Format: "jpg", Size: &size, GeneratedAt: &fixedNow},
	}
	f.seed(t, a)
	r := newTestRouter(NewHandler(f.manager, nil, nil))

	rec := doRequest(r, http.MethodGet, "/api/v1/assets/H4/formats/jpg/info", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entry assets.FormatEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.URL != "https://blobs.test/h4.jpg" || entry.Size == nil || *entry.Size != 2048 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	rec = doRequest(r, http.MethodGet, "/api/v1/assets/H4/formats/webp/info", "", nil)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Error.Code != "format_not_found" {
		t.Fatalf("expected 404 format_not_found, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(r, http.MethodGet, "/api/v1/assets/H4/formats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.AssetID != "H4" || len(summary.Formats) != 2 || summary.Formats["original"].URL != a.FileURL {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.DownloadOptions) != 4 {
		t.Fatalf("unexpected download options %v", summary.DownloadOptions)
	}
	if f.converter.callCount() != 0 {
		t.Fatalf("read endpoints must not convert")
	}
}

func TestHandlerPrewarmRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, pngAsset("H5"))
	r := newTestRouter(NewHandler(f.manager, nil, []string{"webp"}))

	rec := doRequest(r, http.MethodPost, "/api/v1/assets/H5/formats/prewarm", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if f.converter.callCount() != 0 {
		t.Fatalf("forbidden prewarm must not convert")
	}
}

func TestHandlerPrewarmInline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, pngAsset("H6"))
	r := newTestRouter(NewHandler(f.manager, nil, []string{"webp"}))
	token := adminToken(t)

	rec := doRequest(r, http.MethodPost, "/api/v1/assets/H6/formats/prewarm", token, []byte(`{"formats":["png","svg"]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Queued  bool          `json:"queued"`
		Results []prewarmItem `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Queued || len(body.Results) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Results[0].Format != "png" || body.Results[0].URL == "" || body.Results[0].Error != "" {
		t.Fatalf("png result %+v", body.Results[0])
	}
	if body.Results[1].Format != "svg" || body.Results[1].Code != "unsupported_conversion" {
		t.Fatalf("svg result %+v", body.Results[1])
	}

	rec = doRequest(r, http.MethodPost, "/api/v1/assets/H6/formats/prewarm", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with default formats, got %d", rec.Code)
	}
	if _, ok := f.reload(t, "H6").AvailableFormats["webp"]; !ok {
		t.Fatalf("default prewarm formats were not generated")
	}

	rec = doRequest(r, http.MethodPost, "/api/v1/assets/H6/formats/prewarm", token, []byte(`{"formats":["tiff"]}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestHandlerPrewarmQueued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, pngAsset("H7"))
	enq := &fakeEnqueuer{}
	r := newTestRouter(NewHandler(f.manager, enq, []string{"webp", "png"}))
	token := adminToken(t)

	rec := doRequest(r, http.MethodPost, "/api/v1/assets/H7/formats/prewarm", token, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if enq.calls != 1 || enq.assetID != "H7" || len(enq.formats) != 2 {
		t.Fatalf("unexpected enqueue %+v", enq)
	}
	if enq.requestID == "" {
		t.Fatalf("expected request id to be forwarded")
	}
	if f.converter.callCount() != 0 {
		t.Fatalf("queued prewarm must not convert inline")
	}

	rec = doRequest(r, http.MethodPost, "/api/v1/assets/unknown/formats/prewarm", token, nil)
	if rec.Code != http.StatusNotFound || enq.calls != 1 {
		t.Fatalf("unknown asset should 404 without enqueue, got %d calls=%d", rec.Code, enq.calls)
	}

	enq.err = errors.New("queue down")
	rec = doRequest(r, http.MethodPost, "/api/v1/assets/H7/formats/prewarm", token, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on enqueue failure, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{ErrAssetNotFound, http.StatusNotFound},
		{ErrFormatNotFound, http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUnsupportedConversion, http.StatusBadRequest},
		{imageconv.ErrUnsupportedTargetFormat, http.StatusBadRequest},
		{ErrOriginalURLMissing, http.StatusConflict},
		{ErrDecodeFailed, http.StatusUnprocessableEntity},
		{ErrEncodedTooLarge, http.StatusRequestEntityTooLarge},
		{ErrStoreWriteFailed, http.StatusBadGateway},
		{ErrNotConfigured, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{&ResolveError{AssetID: "x", Format: "png", Op: "load", Err: ErrAssetNotFound}, http.StatusNotFound},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
