// -----------------------------------------------------------------------
// Content source registry - Resolves the content adapters for one pass
// -----------------------------------------------------------------------

package sources

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// Optional content kinds provided by plugins
const (
	PluginMoments = "moments"
	PluginPhotos  = "photos"
	PluginDocs    = "docs"
)

// Registry builds the set of content sources enabled by the current settings
type Registry struct {
	storage  interfaces.ContentStorage
	config   *common.Config
	renderer *renderer
	logger   arbor.ILogger
}

// NewRegistry creates a new content source registry
func NewRegistry(storage interfaces.ContentStorage, config *common.Config, logger arbor.ILogger) *Registry {
	return &Registry{
		storage:  storage,
		config:   config,
		renderer: newRenderer(),
		logger:   logger,
	}
}

// Resolve returns the sources to read for one pass. Settings and avatars are
// always read; optional kinds need both their toggle and their plugin.
func (r *Registry) Resolve() []interfaces.ContentSource {
	scan := r.config.Scan
	var resolved []interfaces.ContentSource

	if scan.ScanPosts {
		resolved = append(resolved, newPostSource(r.storage, r.renderer))
	}
	if scan.ScanPages {
		resolved = append(resolved, newPageSource(r.storage, r.renderer))
	}
	if scan.ScanComments {
		resolved = append(resolved,
			newCommentSource(r.storage, r.renderer),
			newReplySource(r.storage, r.renderer))
	}
	if scan.ScanMoments && r.optional(PluginMoments) {
		resolved = append(resolved, newMomentSource(r.storage, r.renderer))
	}
	if scan.ScanPhotos && r.optional(PluginPhotos) {
		resolved = append(resolved, newPhotoSource(r.storage))
	}
	if scan.ScanDocs && r.optional(PluginDocs) {
		resolved = append(resolved, newDocSource(r.storage, r.renderer))
	}

	resolved = append(resolved,
		newConfigBlobSource(models.SourceTypeSystem, r.storage),
		newConfigBlobSource(models.SourceTypePlugin, r.storage),
		newConfigBlobSource(models.SourceTypeTheme, r.storage),
		newUserSource(r.storage),
	)

	kinds := make([]string, 0, len(resolved))
	for _, s := range resolved {
		kinds = append(kinds, s.Kind())
	}
	r.logger.Debug().Strs("kinds", kinds).Msg("Content sources resolved")

	return resolved
}

func (r *Registry) optional(plugin string) bool {
	if r.config.IsPluginInstalled(plugin) {
		return true
	}
	r.logger.Info().Str("plugin", plugin).Msg("Plugin not installed, skipping content kind")
	return false
}
