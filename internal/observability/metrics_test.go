package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RoomCreated()
	m.RoomCreated()
	m.RoomDeleted()
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.rooms))

	m.MessagePublished()
	m.MessagesLagged(5)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.published))
	assert.Equal(t, 5.0, promtestutil.ToFloat64(m.lagged))

	m.RelayStarted()
	m.RelayFinished(2 * time.Second)
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.relaysActive))
	assert.Equal(t, 1, promtestutil.CollectAndCount(m.relayDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RoomCreated()
		m.RoomDeleted()
		m.RelayStarted()
		m.RelayFinished(time.Second)
		m.MessagePublished()
		m.MessagesLagged(3)
		m.HTTPRequest("/room_ls", "200")
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.HTTPRequest("/room_ls", "200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatrelay_rooms")
	assert.Contains(t, string(body), `chatrelay_http_requests_total{code="200",route="/room_ls"} 1`)
}
