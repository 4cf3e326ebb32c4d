package pipeline

import (
	"errors"
	"os"
	"strings"
	"sync"

	"chatrelay/models"

	"github.com/jinzhu/gorm"
)

// ErrNotConfigured means the user has no Voiceflow mapping. The pipeline must
// not reach the engine (or spend anything) for such users.
var ErrNotConfigured = errors.New("voiceflow integration not configured")

// ResolvedConfig is the per-user integration config the engine call needs.
type ResolvedConfig struct {
	UserID    int64
	ProjectID string
	VersionID string
	ApiKey    string
}

// ConfigResolver resolves and caches the per-user Voiceflow mapping.
// The cache lives for the process and is only dropped by an explicit
// Invalidate (e.g. before retrying after an auth failure), never by TTL.
type ConfigResolver struct {
	db *gorm.DB

	mu    sync.Mutex
	cache map[int64]*ResolvedConfig
}

func NewConfigResolver(db *gorm.DB) *ConfigResolver {
	return &ConfigResolver{
		db:    db,
		cache: make(map[int64]*ResolvedConfig),
	}
}

// Resolve returns the cached config when present, otherwise loads it from the
// store. Missing mapping returns ErrNotConfigured. A missing api key is not
// an error: the client falls back to the shared VOICEFLOW_API_KEY env.
func (r *ConfigResolver) Resolve(userID int64) (*ResolvedConfig, error) {
	r.mu.Lock()
	if cfg, ok := r.cache[userID]; ok {
		r.mu.Unlock()
		return cfg, nil
	}
	r.mu.Unlock()

	var row models.VoiceflowConfig
	if err := r.db.Where("user_id = ?", userID).First(&row).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}

	if strings.TrimSpace(row.ProjectID) == "" {
		return nil, ErrNotConfigured
	}

	cfg := &ResolvedConfig{
		UserID:    userID,
		ProjectID: strings.TrimSpace(row.ProjectID),
		VersionID: strings.TrimSpace(row.VersionID),
		ApiKey:    strings.TrimSpace(row.ApiKey),
	}
	if cfg.VersionID == "" {
		cfg.VersionID = "production"
	}
	if cfg.ApiKey == "" {
		// degrade, don't fail: config validity does not depend on key presence
		cfg.ApiKey = strings.TrimSpace(os.Getenv("VOICEFLOW_API_KEY"))
	}

	// Races on population are harmless: the fetched value is idempotent per
	// user, last write wins.
	r.mu.Lock()
	r.cache[userID] = cfg
	r.mu.Unlock()

	return cfg, nil
}

// Invalidate drops the cached config so the next Resolve hits the store.
func (r *ConfigResolver) Invalidate(userID int64) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}
