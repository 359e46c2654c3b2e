package model

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetKeepsLocalForm(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	d := DateTime{Time: time.Date(2025, 1, 6, 9, 0, 0, 0, paris), TZID: "Europe/Paris"}
	shifted := d.Offset(time.Hour)

	assert.Equal(t, "Europe/Paris", shifted.TZID)
	assert.False(t, shifted.AllDay)
	assert.Equal(t, time.Hour, shifted.Time.Sub(d.Time))
	assert.Equal(t, 10, shifted.Local().Hour())
}

func TestLocalFallsBackOnUnknownZone(t *testing.T) {
	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	d := DateTime{Time: at, TZID: "Nowhere/Special"}
	assert.True(t, d.Local().Equal(at))
	assert.Equal(t, time.UTC, d.Local().Location())
}

func TestTransportClone(t *testing.T) {
	tr := Transport{Headers: map[string]string{"X-A": "1"}}
	cp := tr.Clone()
	cp.Headers["X-A"] = "2"
	assert.Equal(t, "1", tr.Headers["X-A"])
}
