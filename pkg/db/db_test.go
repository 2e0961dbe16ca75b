package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Without error translation the loser of a concurrent unique-key insert sees
// the raw driver error instead of gorm.ErrDuplicatedKey, so the reservation
// re-read path never runs.
func TestGormConfigTranslatesDriverErrors(t *testing.T) {
	cfg := gormConfig(Config{LogEnabled: false, SlowQueryThreshold: 1000})

	assert.True(t, cfg.TranslateError)
	assert.NotNil(t, cfg.Logger)
}
