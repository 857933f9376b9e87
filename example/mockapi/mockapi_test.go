package mockapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPI_RequiresCredentials(t *testing.T) {
	srv := httptest.NewServer(New("analyst", "s3cret", 3, 0).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/query", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/query", nil)
	require.NoError(t, err)
	req.SetBasicAuth("analyst", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Events, 3)
}

func TestAPI_Flat(t *testing.T) {
	srv := httptest.NewServer(New("", "", 2, 0).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/flat", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var events []Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	assert.Len(t, events, 2)
}

func TestAPI_Rotation(t *testing.T) {
	a := New("", "", 4, time.Minute)
	now := time.Now()
	a.now = func() time.Time { return now }
	a.rotatedAt = now

	before := a.Events()
	assert.Equal(t, before, a.Events(), "no rotation before it is due")

	now = now.Add(time.Minute)
	a.Events()
	assert.Equal(t, now, a.rotatedAt)
}
