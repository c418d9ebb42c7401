package bulletins

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/2beens/bulletinboard/internal/bulletins/registry"
	"github.com/2beens/bulletinboard/internal/telemetry/metrics"
	"github.com/2beens/bulletinboard/internal/telemetry/tracing"
	"github.com/2beens/bulletinboard/pkg"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// multipart parts above this size are spooled to temp files
const maxMultipartMemory = 8 << 20

type uploadResponse struct {
	Message   string `json:"message"`
	PublicURL string `json:"publicURL"`
	// kept for older admin dashboards
	ImagePath string `json:"imagePath"`
}

type Handler struct {
	assetStore      *AssetStore
	publicURLPrefix string
	maxUploadSize   int64
	metricsManager  *metrics.Manager
}

func NewHandler(
	assetStore *AssetStore,
	publicURLPrefix string,
	maxUploadSize int64,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		assetStore:      assetStore,
		publicURLPrefix: "/" + strings.Trim(publicURLPrefix, "/"),
		maxUploadSize:   maxUploadSize,
		metricsManager:  metricsManager,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/bulletins", handler.handleGetAll).Methods("GET", "OPTIONS").Name("bulletins")
	router.HandleFunc("/upload", handler.handleUpload).Methods("POST", "OPTIONS").Name("upload")

	staticPrefix := handler.publicURLPrefix + "/"
	staticHandler := http.StripPrefix(
		staticPrefix,
		http.FileServer(assetsFileSystem{root: http.Dir(handler.assetStore.AssetsDir())}),
	)
	router.PathPrefix(staticPrefix).
		Handler(otelhttp.NewHandler(staticHandler, "bulletins.static")).
		Methods("GET", "HEAD").Name("uploads")
}

func (handler *Handler) handleGetAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "bulletinsHandler.getAll")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "GET, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	reg, err := handler.assetStore.ReadAll(ctx)
	if err != nil {
		log.Errorf("get bulletins: %s", err)
		span.SetStatus(codes.Error, err.Error())
		pkg.WriteJSONError(w, "Failed to read bulletins", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.Int("bulletins.count", len(reg)))
	pkg.WriteJSON(w, reg, http.StatusOK)
}

func (handler *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "bulletinsHandler.upload")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	// form fields and multipart overhead on top of the image itself
	r.Body = http.MaxBytesReader(w, r.Body, handler.maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			log.Warnf("upload rejected, body over %d bytes", maxBytesErr.Limit)
			handler.countUpload("", "too_large")
			pkg.WriteJSONError(w, "File too big", http.StatusRequestEntityTooLarge)
			return
		}
		log.Debugf("upload, parse multipart form: %s", err)
		handler.countUpload("", "bad_request")
		pkg.WriteJSONError(w, "Missing file or page parameter", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Errorf("upload, remove multipart temp files: %s", err)
		}
	}()

	page := r.FormValue("page")
	file, fileHeader, err := r.FormFile("image")
	if err != nil {
		log.Debugf("upload, get image form file: %s", err)
		handler.countUpload(page, "bad_request")
		pkg.WriteJSONError(w, "Missing file or page parameter", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Errorf("upload, close form file [%s]: %s", fileHeader.Filename, err)
		}
	}()

	if page == "" || fileHeader.Size == 0 {
		handler.countUpload(page, "bad_request")
		pkg.WriteJSONError(w, "Missing file or page parameter", http.StatusBadRequest)
		return
	}

	span.SetAttributes(attribute.String("page.id", page))
	span.SetAttributes(attribute.String("file.original_name", fileHeader.Filename))

	publicURL, err := handler.assetStore.Store(ctx, StoreParams{
		PageID:      page,
		File:        file,
		Size:        fileHeader.Size,
		OriginalExt: filepath.Ext(fileHeader.Filename),
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrBadRequest) {
			log.Debugf("upload rejected: %s", err)
			handler.countUpload(page, "bad_request")
			pkg.WriteJSONError(w, "Invalid page or empty image", http.StatusBadRequest)
			return
		}
		log.Errorf("upload for page [%s] failed: %s", page, err)
		handler.countUpload(page, "error")
		pkg.WriteJSONError(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	handler.countUpload(page, "ok")
	if handler.metricsManager != nil {
		handler.metricsManager.HistogramUploadSize.Observe(float64(fileHeader.Size))
	}

	log.Infof("new bulletin image for page [%s]: %s", page, publicURL)
	pkg.WriteJSON(w, uploadResponse{
		Message:   "Upload successful",
		PublicURL: publicURL,
		ImagePath: publicURL,
	}, http.StatusOK)
}

func (handler *Handler) countUpload(page, result string) {
	if handler.metricsManager == nil {
		return
	}
	// unknown pages share one label value
	if _, ok := registry.ParsePageID(page); !ok {
		page = "invalid"
	}
	handler.metricsManager.CounterUploads.With(prometheus.Labels{
		"page":   page,
		"result": result,
	}).Inc()
}

// assetsFileSystem serves files only, no directory listings
type assetsFileSystem struct {
	root http.FileSystem
}

func (fs assetsFileSystem) Open(name string) (http.File, error) {
	f, err := fs.root.Open(name)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}

	return f, nil
}
