package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibilityJSON(t *testing.T) {
	data, err := json.Marshal(HideName)
	require.NoError(t, err)
	assert.Equal(t, `"hide_name"`, string(data))

	var v Visibility
	require.NoError(t, json.Unmarshal([]byte(`"hide_all"`), &v))
	assert.Equal(t, HideAll, v)

	require.Error(t, json.Unmarshal([]byte(`"sometimes"`), &v))
	require.Error(t, json.Unmarshal([]byte(`3`), &v))
}

func TestDateOfUsesLocation(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	// 2024-03-01 20:00 UTC is already 2024-03-02 in Seoul.
	ts := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, Date{2024, time.March, 1}, DateOf(ts, time.UTC))
	assert.Equal(t, Date{2024, time.March, 2}, DateOf(ts, seoul))
}

func TestDateHelpers(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)

	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.AddDays(1).Before(d))

	_, err = ParseDate("28/02/2024")
	require.Error(t, err)
}

func TestCredentialValid(t *testing.T) {
	var nilCred *Credential
	assert.False(t, nilCred.Valid())
	assert.False(t, (&Credential{UserID: 1}).Valid())
	assert.True(t, (&Credential{UserID: 1, Key: []byte{0x01}}).Valid())
}
