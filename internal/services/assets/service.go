// -----------------------------------------------------------------------
// Asset Inventory
// Stored asset records plus the local upload directory they point into
// -----------------------------------------------------------------------

package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/httpclient"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/extractor"
)

// UploadPrefix is the URL path under which the local backend is served
const UploadPrefix = "/upload/"

// Service implements interfaces.AssetInventory
type Service struct {
	storage    interfaces.AssetStorage
	config     *common.Config
	downloader *httpclient.Downloader
	logger     arbor.ILogger
}

// NewService creates a new asset inventory
func NewService(storage interfaces.AssetStorage, config *common.Config, logger arbor.ILogger) *Service {
	downloader := httpclient.NewDownloader(
		httpclient.WithHTTPClient(httpclient.NewDownloadHTTPClient(config.ConnectTimeout(), config.ReadTimeout())),
		httpclient.WithRateLimit(config.HTTP.RateLimit),
		httpclient.WithUserAgent(config.HTTP.UserAgent),
		httpclient.WithLogger(logger),
	)
	return &Service{
		storage:    storage,
		config:     config,
		downloader: downloader,
		logger:     logger,
	}
}

func (s *Service) List(ctx context.Context, filter *models.AssetFilter) ([]*models.Asset, error) {
	return s.storage.ListAssets(ctx, filter)
}

// Get returns nil without error when the asset is missing or deleted
func (s *Service) Get(ctx context.Context, id string) (*models.Asset, error) {
	asset, err := s.storage.GetAsset(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !asset.Exists() {
		return nil, nil
	}
	return asset, nil
}

// Delete removes the record and, for the local backend, the stored file
func (s *Service) Delete(ctx context.Context, id string) error {
	asset, err := s.storage.GetAsset(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("asset %s: %w", id, common.ErrNotFound)
		}
		return err
	}

	if !s.config.IsRemoteBackend(asset.Backend) {
		if file, ok := s.localPath(asset.Permalink); ok {
			if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove asset file: %w", err)
			}
		}
	}

	if err := s.storage.DeleteAsset(ctx, id); err != nil {
		return err
	}

	s.logger.Debug().Str("asset_id", id).Str("name", asset.DisplayName).Msg("Asset deleted")
	return nil
}

// Upload stores new bytes on a local backend and records the asset
func (s *Service) Upload(ctx context.Context, req interfaces.UploadRequest) (*models.Asset, error) {
	if req.Filename == "" || len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: filename and data are required", common.ErrValidation)
	}
	if s.config.IsRemoteBackend(req.Backend) {
		return nil, fmt.Errorf("uploads to remote backend %q are not supported", req.Backend)
	}

	dir := filepath.Join(s.config.Assets.UploadDir, filepath.FromSlash(cleanSegment(req.Group)))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	name, err := writeUnique(dir, cleanSegment(req.Filename), req.Data)
	if err != nil {
		return nil, err
	}

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = SniffMediaType(req.Data)
	}

	now := time.Now()
	asset := &models.Asset{
		ID:          common.NewID("asset"),
		DisplayName: name,
		MediaType:   mediaType,
		Size:        int64(len(req.Data)),
		Backend:     req.Backend,
		Group:       req.Group,
		Permalink:   permalink(req.Group, name),
		UploadedAt:  &now,
	}
	if err := s.storage.SaveAsset(ctx, asset); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("asset_id", asset.ID).Str("permalink", asset.Permalink).Msg("Asset uploaded")
	return asset, nil
}

// Open streams an asset by its access URL. Local files are read from disk;
// everything else is downloaded, resolving relative URLs against the base URL.
func (s *Service) Open(ctx context.Context, permalink string) (io.ReadCloser, error) {
	if file, ok := s.localPath(permalink); ok {
		f, err := os.Open(file)
		if err == nil {
			return f, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open asset file: %w", err)
		}
	}

	target := permalink
	if !extractor.IsFullURL(target) {
		target = extractor.JoinBase(s.config.Assets.BaseURL, target)
	}
	return s.downloader.Open(ctx, target)
}

// localPath maps a root-relative /upload/ permalink to a file under the upload dir
func (s *Service) localPath(permalink string) (string, bool) {
	if s.config.Assets.UploadDir == "" || !strings.HasPrefix(permalink, UploadPrefix) {
		return "", false
	}
	rel := extractor.DecodeURL(strings.TrimPrefix(permalink, UploadPrefix))
	rel = path.Clean("/" + rel)
	if rel == "/" {
		return "", false
	}
	return filepath.Join(s.config.Assets.UploadDir, filepath.FromSlash(rel)), true
}

// IndexUploads records files under the upload directory that no asset points
// at yet, as assets of the given local backend. The first directory level is the
// group. It returns how many assets were added.
func (s *Service) IndexUploads(ctx context.Context, backend string) (int, error) {
	root := s.config.Assets.UploadDir
	if root == "" {
		return 0, fmt.Errorf("%w: assets.upload_dir is not set", common.ErrValidation)
	}
	if s.config.IsRemoteBackend(backend) {
		return 0, fmt.Errorf("%w: backend %q is not local", common.ErrValidation, backend)
	}

	existing, err := s.storage.ListAssets(ctx, nil)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, a := range existing {
		known[a.Permalink] = true
	}

	added := 0
	err = filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, file)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")
		escaped := make([]string, len(segments))
		for i, seg := range segments {
			escaped[i] = url.PathEscape(seg)
		}
		link := UploadPrefix + strings.Join(escaped, "/")
		if known[link] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		mediaType := ""
		if mt, err := mimetype.DetectFile(file); err == nil {
			mediaType, _, _ = strings.Cut(mt.String(), ";")
		}
		group := ""
		if len(segments) > 1 {
			group = segments[0]
		}
		uploadedAt := info.ModTime()

		asset := &models.Asset{
			ID:          common.NewID("asset"),
			DisplayName: d.Name(),
			MediaType:   mediaType,
			Size:        info.Size(),
			Backend:     backend,
			Group:       group,
			Permalink:   link,
			UploadedAt:  &uploadedAt,
		}
		if err := s.storage.SaveAsset(ctx, asset); err != nil {
			return err
		}
		known[link] = true
		added++
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("failed to index uploads: %w", err)
	}

	s.logger.Info().Str("backend", backend).Int("added", added).Msg("Upload directory indexed")
	return added, nil
}

// SniffMediaType detects the media type of data
func SniffMediaType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.Index(mt, ";"); i > 0 {
		mt = mt[:i]
	}
	return mt
}

func permalink(group, name string) string {
	p := UploadPrefix
	if g := cleanSegment(group); g != "" {
		p += url.PathEscape(g) + "/"
	}
	return p + url.PathEscape(name)
}

// cleanSegment reduces a caller supplied name to a single safe path segment
func cleanSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\\", "/")
	s = path.Base(path.Clean("/" + s))
	if s == "/" || s == "." {
		return ""
	}
	return s
}

// writeUnique writes data as name in dir, suffixing the stem when the name is taken
func writeUnique(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil {
				return "", fmt.Errorf("failed to write asset file: %w", werr)
			}
			if cerr != nil {
				return "", fmt.Errorf("failed to write asset file: %w", cerr)
			}
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create asset file: %w", err)
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}
