package bulletins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/2beens/bulletinboard/internal/bulletins/registry"
	"github.com/2beens/bulletinboard/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrIOFailure  = errors.New("io failure")
)

var extRegex = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

type StoreParams struct {
	PageID      string
	File        io.Reader
	Size        int64
	OriginalExt string
}

type AssetStore struct {
	assetsDir       string
	publicURLPrefix string
	registry        registry.Store
	// serialises registry read-modify-write
	mutex sync.Mutex
	// ability to inject the clock, used for file names
	NowFunc func() time.Time
}

func NewAssetStore(assetsDir, publicURLPrefix string, reg registry.Store) (*AssetStore, error) {
	if assetsDir == "" {
		return nil, errors.New("assets dir cannot be empty")
	}
	if reg == nil {
		return nil, errors.New("registry store cannot be nil")
	}
	return &AssetStore{
		assetsDir:       assetsDir,
		publicURLPrefix: "/" + strings.Trim(publicURLPrefix, "/"),
		registry:        reg,
		NowFunc:         time.Now,
	}, nil
}

func (s *AssetStore) AssetsDir() string {
	return s.assetsDir
}

// Store writes the image under a new name and points the page at it.
// The previous image of the page stays on disk.
func (s *AssetStore) Store(ctx context.Context, params StoreParams) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "assetStore.store")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	pageID, ok := registry.ParsePageID(params.PageID)
	if !ok {
		return "", fmt.Errorf("%w: invalid page [%s]", ErrBadRequest, params.PageID)
	}
	if params.File == nil || params.Size <= 0 {
		return "", fmt.Errorf("%w: empty file", ErrBadRequest)
	}

	span.SetAttributes(attribute.String("page.id", string(pageID)))
	span.SetAttributes(attribute.Int64("file.size", params.Size))

	fileName := fmt.Sprintf("%s-%d%s", pageID, s.NowFunc().UnixMilli(), normalizeExt(params.OriginalExt))
	span.SetAttributes(attribute.String("file.name", fileName))

	written, err := s.writeAsset(fileName, params.File)
	if err != nil {
		return "", err
	}

	publicURL := path.Join(s.publicURLPrefix, fileName)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, err := s.registry.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: load registry: %s", ErrIOFailure, err)
	}

	updated := current.Clone()
	updated[pageID] = publicURL
	if err := s.registry.Save(ctx, updated); err != nil {
		return "", fmt.Errorf("%w: save registry: %s", ErrIOFailure, err)
	}

	log.Debugf("asset store: page [%s] -> %s (%d bytes)", pageID, publicURL, written)

	return publicURL, nil
}

func (s *AssetStore) writeAsset(fileName string, src io.Reader) (_ int64, err error) {
	if err := os.MkdirAll(s.assetsDir, 0755); err != nil {
		return 0, fmt.Errorf("%w: create assets dir: %s", ErrIOFailure, err)
	}

	filePath := filepath.Join(s.assetsDir, fileName)
	// never overwrite an existing asset
	dst, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: create asset file: %s", ErrIOFailure, err)
	}

	defer func() {
		if err != nil {
			if removeErr := os.Remove(filePath); removeErr != nil {
				log.Errorf("asset store: remove partial file %s: %s", filePath, removeErr)
			}
		}
	}()

	written, err := io.Copy(dst, src)
	if err != nil {
		_ = dst.Close()
		return 0, fmt.Errorf("%w: write asset file: %s", ErrIOFailure, err)
	}
	if written == 0 {
		_ = dst.Close()
		return 0, fmt.Errorf("%w: empty file", ErrBadRequest)
	}
	if err = dst.Sync(); err != nil {
		_ = dst.Close()
		return 0, fmt.Errorf("%w: sync asset file: %s", ErrIOFailure, err)
	}
	if err = dst.Close(); err != nil {
		return 0, fmt.Errorf("%w: close asset file: %s", ErrIOFailure, err)
	}

	return written, nil
}

// ReadAll returns the current page -> public URL mapping; empty before the first upload
func (s *AssetStore) ReadAll(ctx context.Context) (_ registry.Registry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "assetStore.readAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	reg, err := s.registry.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load registry: %s", ErrIOFailure, err)
	}
	if reg == nil {
		reg = registry.Registry{}
	}
	return reg, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !extRegex.MatchString(ext) {
		return ""
	}
	return ext
}
