// Package harvester drives the crawl-and-acquire pipeline: per-item
// metadata persistence, derivative downloads, and the token-sensitive native
// download with expiry recovery.
package harvester

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"libharvest/pkg/collection"
	errs "libharvest/pkg/errors"
	"libharvest/pkg/httpclient"
	"libharvest/pkg/imagecheck"
	"libharvest/pkg/logger"
	"libharvest/pkg/metrics"
	"libharvest/pkg/models"
	"libharvest/pkg/storage"
	"libharvest/pkg/token"
)

// Engine acquires a single item: page snapshot, metadata document, and the
// three image derivatives.
type Engine struct {
	parser  *collection.Parser
	store   *storage.Manager
	session *httpclient.Session
	mtr     *metrics.Metrics
	log     logger.Logger
}

// NewEngine creates an acquisition engine. mtr may be nil.
func NewEngine(parser *collection.Parser, store *storage.Manager, session *httpclient.Session, mtr *metrics.Metrics, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		parser:  parser,
		store:   store,
		session: session,
		mtr:     mtr,
		log:     log,
	}
}

// AcquireItem processes one item end to end. Asset roles are fault-isolated
// from each other; the returned error is reserved for faults that make the
// whole item unusable: an underivable id, a page fetch failure, a metadata
// persistence failure, or a native download failure. A native failure caused
// by token expiry (or an integrity failure, which usually shares the root
// cause) carries the auth-expired or integrity error type so the caller can
// re-authenticate and retry.
func (e *Engine) AcquireItem(ctx context.Context, itemURL string) (*models.AcquisitionResult, error) {
	id, err := collection.ItemIDFromURL(itemURL)
	if err != nil {
		return nil, err
	}
	result := models.NewAcquisitionResult(id, itemURL)

	if _, err := e.store.EnsureItemDir(id); err != nil {
		return result, err
	}

	item, html, err := e.parser.ParseItem(ctx, itemURL)
	if err != nil {
		return result, err
	}
	e.mtr.IncPageFetched()

	// Metadata is cheap and assumed current, so it is always rewritten.
	if err := e.store.WriteHTML(id, html); err != nil {
		return result, err
	}
	if err := e.store.WriteMetadata(id, item); err != nil {
		return result, err
	}

	for _, role := range []models.AssetRole{models.RoleMedium, models.RoleThumbnail} {
		outcome := e.downloadDerivative(ctx, item, role)
		result.Record(role, outcome.Status, outcome.Reason)
		e.mtr.IncDownload(string(role), string(outcome.Status))
		if outcome.Status == models.OutcomeError {
			e.log.WarnWithFields("derivative download failed", map[string]interface{}{
				"item_id": id,
				"role":    string(role),
				"reason":  outcome.Reason,
			})
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}

	outcome, err := e.downloadNative(ctx, item)
	result.Record(models.RoleNative, outcome.Status, outcome.Reason)
	e.mtr.IncDownload(string(models.RoleNative), string(outcome.Status))
	if err != nil {
		return result, err
	}

	return result, nil
}

// downloadDerivative fetches a medium or thumbnail asset. Existing files
// with any bytes are trusted without re-validation.
func (e *Engine) downloadDerivative(ctx context.Context, item *models.Item, role models.AssetRole) models.RoleOutcome {
	link := item.Links.ForRole(role)
	if link == "" {
		return models.RoleOutcome{Status: models.OutcomeAbsent}
	}

	if e.store.DerivativeExists(item.ID, role) {
		return models.RoleOutcome{Status: models.OutcomeSkipped}
	}

	resp, err := e.session.Get(ctx, link, httpclient.Options{
		Browser: true,
		Referer: item.URL,
		Timeout: e.session.DownloadTimeout(),
	})
	if err != nil {
		return models.RoleOutcome{Status: models.OutcomeError, Reason: err.Error()}
	}
	if resp.StatusCode != 200 {
		return models.RoleOutcome{
			Status: models.OutcomeError,
			Reason: errs.New(errs.ErrorTypeNotFound, resp.StatusCode, "derivative returned status %d", resp.StatusCode).Error(),
		}
	}

	if err := e.store.WriteAsset(item.ID, storage.DerivativeFilename(role), resp.Body); err != nil {
		return models.RoleOutcome{Status: models.OutcomeError, Reason: err.Error()}
	}

	e.mtr.AddDownloadBytes(len(resp.Body))
	logger.LogDownload(item.ID, string(role), true, nil)
	return models.RoleOutcome{Status: models.OutcomeOK}
}

// downloadNative fetches the full-resolution image through the protected
// endpoint. The page cache is never consulted here; a disguised challenge
// must not be replayed as if it were a valid asset.
func (e *Engine) downloadNative(ctx context.Context, item *models.Item) (models.RoleOutcome, error) {
	link := item.Links.Native
	if link == "" {
		return models.RoleOutcome{Status: models.OutcomeAbsent}, nil
	}

	if e.store.HasValidNative(item.ID) {
		return models.RoleOutcome{Status: models.OutcomeSkipped}, nil
	}

	resp, err := e.session.Get(ctx, link, httpclient.Options{
		Browser:   true,
		Referer:   item.URL,
		Cacheable: false,
		Timeout:   e.session.DownloadTimeout(),
	})
	if err != nil {
		return models.RoleOutcome{Status: models.OutcomeError, Reason: err.Error()}, err
	}

	if token.IsChallengeResponse(resp.StatusCode, resp.ContentType(), resp.Body) {
		expErr := errs.New(errs.ErrorTypeAuthExpired, resp.StatusCode, "native download answered with a challenge")
		return models.RoleOutcome{Status: models.OutcomeError, Reason: expErr.Message}, expErr
	}

	if resp.StatusCode != 200 {
		statErr := errs.New(errs.ErrorTypeNotFound, resp.StatusCode, "native download returned status %d", resp.StatusCode)
		return models.RoleOutcome{Status: models.OutcomeError, Reason: statErr.Message}, statErr
	}

	if kind := imagecheck.Classify(resp.Body); kind == imagecheck.Invalid {
		intErr := errs.New(errs.ErrorTypeIntegrity, 0, "native payload failed image validation (%d bytes)", len(resp.Body))
		return models.RoleOutcome{Status: models.OutcomeError, Reason: intErr.Message}, intErr
	}

	ext := inferExtension(resp.Header.Get("Content-Disposition"), resp.ContentType())
	path := e.store.NativePath(item.ID, ext)

	// Clear broken leftovers under other extensions before the new write.
	e.store.RemoveStaleNatives(item.ID, path)

	if err := e.store.WriteAsset(item.ID, filepath.Base(path), resp.Body); err != nil {
		return models.RoleOutcome{Status: models.OutcomeError, Reason: err.Error()}, err
	}

	e.mtr.AddDownloadBytes(len(resp.Body))
	logger.LogDownload(item.ID, string(models.RoleNative), true, nil)
	return models.RoleOutcome{Status: models.OutcomeOK}, nil
}

// inferExtension picks the native file extension from the Content-Disposition
// filename, then the content type, then defaults to .jpg.
func inferExtension(contentDisposition, contentType string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if ext := strings.ToLower(filepath.Ext(params["filename"])); ext != "" {
				for _, known := range imagecheck.NativeExtensions {
					if ext == known {
						return ext
					}
				}
			}
		}
	}

	switch {
	case strings.Contains(contentType, "image/png"):
		return ".png"
	case strings.Contains(contentType, "image/tiff"):
		return ".tif"
	case strings.Contains(contentType, "image/jpeg"):
		return ".jpg"
	}
	return ".jpg"
}
