package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/perpcloser/internal/domain"
)

func TestAuditQuery(t *testing.T) {
	q, args := auditQuery(domain.ListOpts{})
	assert.Equal(t, `SELECT id, event, COALESCE(detail, '{}'::jsonb), created_at FROM audit_log ORDER BY created_at DESC`, q)
	assert.Empty(t, args)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	q, args = auditQuery(domain.ListOpts{Since: &since, Until: &until, Limit: 50, Offset: 100})
	assert.Equal(t, `SELECT id, event, COALESCE(detail, '{}'::jsonb), created_at FROM audit_log`+
		` WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, q)
	assert.Equal(t, []any{since, until, 50, 100}, args)
}
