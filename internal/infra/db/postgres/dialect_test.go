package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDialect(t *testing.T) {
	t.Parallel()

	d := Dialect{}
	assert.Equal(t, "postgres", d.Name())
	assert.Equal(t, "SELECT * FROM review_runs WHERE id=$1 AND status=$2", d.Rebind("SELECT * FROM review_runs WHERE id=? AND status=?"))

	loc := time.FixedZone("WIB", 7*3600)
	got := d.Time(time.Date(2026, 1, 1, 7, 0, 0, 0, loc)).(time.Time)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, got.Hour())
}
