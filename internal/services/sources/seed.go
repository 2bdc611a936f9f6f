package sources

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/models"
)

// SeedFile is the YAML layout accepted by ImportSeed
type SeedFile struct {
	Content     []*models.ContentItem `yaml:"content"`
	ConfigBlobs []*models.ConfigBlob  `yaml:"config_blobs"`
}

// SeedResult counts what ImportSeed wrote
type SeedResult struct {
	Content     int `json:"content"`
	ConfigBlobs int `json:"config_blobs"`
}

var contentKinds = map[string]bool{
	models.SourceTypePost:    true,
	models.SourceTypePage:    true,
	models.SourceTypeComment: true,
	models.SourceTypeReply:   true,
	models.SourceTypeMoment:  true,
	models.SourceTypePhoto:   true,
	models.SourceTypeDoc:     true,
	models.SourceTypeUser:    true,
}

var blobKinds = map[string]bool{
	models.SourceTypeSystem: true,
	models.SourceTypePlugin: true,
	models.SourceTypeTheme:  true,
}

// ImportSeed upserts the content items and config blobs of a YAML document.
// The whole document is validated before anything is written.
func (r *Registry) ImportSeed(ctx context.Context, reader io.Reader) (*SeedResult, error) {
	var file SeedFile
	if err := yaml.NewDecoder(reader).Decode(&file); err != nil {
		if err == io.EOF {
			return &SeedResult{}, nil
		}
		return nil, fmt.Errorf("%w: invalid seed file: %v", common.ErrValidation, err)
	}

	for i, item := range file.Content {
		if item == nil || item.ID == "" {
			return nil, fmt.Errorf("%w: content[%d] has no id", common.ErrValidation, i)
		}
		if !contentKinds[item.Kind] {
			return nil, fmt.Errorf("%w: content %s has unknown kind %q", common.ErrValidation, item.ID, item.Kind)
		}
		if item.Format == "" {
			item.Format = models.FormatHTML
		}
	}
	for i, blob := range file.ConfigBlobs {
		if blob == nil || blob.Name == "" {
			return nil, fmt.Errorf("%w: config_blobs[%d] has no name", common.ErrValidation, i)
		}
		if !blobKinds[blob.Kind] {
			return nil, fmt.Errorf("%w: config blob %s has unknown kind %q", common.ErrValidation, blob.Name, blob.Kind)
		}
	}

	result := &SeedResult{}
	for _, item := range file.Content {
		if err := r.storage.SaveContent(ctx, item); err != nil {
			return result, err
		}
		result.Content++
	}
	for _, blob := range file.ConfigBlobs {
		if err := r.storage.SaveConfigBlob(ctx, blob); err != nil {
			return result, err
		}
		result.ConfigBlobs++
	}

	r.logger.Info().
		Int("content", result.Content).
		Int("config_blobs", result.ConfigBlobs).
		Msg("Content seed imported")
	return result, nil
}
