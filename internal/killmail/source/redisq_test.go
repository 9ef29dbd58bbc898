package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPull_NullPackageReturnsNilEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"package": null}`))
	}))
	defer srv.Close()

	s := NewRedisQSource(Config{Endpoint: srv.URL})
	event, err := s.Pull(context.Background())
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestPull_PackageReturnsParsedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"package": {
			"killID": 9001,
			"killmail": {
				"killmail_id": 9001,
				"killmail_time": "2024-05-01T12:00:00Z",
				"solar_system_id": 30000142,
				"victim": {"character_id": 100, "corporation_id": 200},
				"attackers": []
			},
			"zkb": {"totalValue": 750000000, "href": "https://zkillboard.com/kill/9001/"}
		}}`))
	}))
	defer srv.Close()

	s := NewRedisQSource(Config{Endpoint: srv.URL})
	event, err := s.Pull(context.Background())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, int64(9001), event.EventID)
	assert.Equal(t, int64(30000142), event.SystemID)
	require.NotNil(t, event.ISKValue)
	assert.Equal(t, int64(750000000), *event.ISKValue)
}

func TestPull_NonOKStatusIsTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewRedisQSource(Config{Endpoint: srv.URL})
	_, err := s.Pull(context.Background())
	require.Error(t, err)
	var httpErr *UpstreamHttpError
	assert.ErrorAs(t, err, &httpErr)
}

func TestAdaptiveTTW_EscalatesAfterNullThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"package": null}`))
	}))
	defer srv.Close()

	s := NewRedisQSource(Config{Endpoint: srv.URL, TTWMin: 1, TTWMax: 10, NullThreshold: 3})
	for i := 0; i < 3; i++ {
		_, err := s.Pull(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 10, s.currentTTW())
}
