package pipeline

import (
	"sync"
	"testing"

	"chatrelay/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// the in-memory database vanishes with its connection
	db.DB().SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.RateLimit{},
		&models.VoiceflowConfig{},
		&models.SocialConnection{},
	).Error)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// recordingReporter captures reported failures for assertions.
type recordingReporter struct {
	mu       sync.Mutex
	errors   []error
	contexts []map[string]string
}

func (r *recordingReporter) ReportError(err error, context map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.contexts = append(r.contexts, context)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func (r *recordingReporter) last() (error, map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errors) == 0 {
		return nil, nil
	}
	return r.errors[len(r.errors)-1], r.contexts[len(r.contexts)-1]
}
