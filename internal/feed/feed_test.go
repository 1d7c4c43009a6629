package feed_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/cache"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/feed"
)

func TestBroadcastReachesSubscriberForMatchingDoctorDate(t *testing.T) {
	f := feed.New()
	doctorID := uuid.New()
	date, err := civildate.ParseDate("05-03-2026")
	require.NoError(t, err)

	var upgrader websocket.Upgrader
	var serverConn *websocket.Conn
	connected := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConn = conn
		f.Subscribe(doctorID, date, conn)
		close(connected)
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	<-connected
	_ = serverConn

	err = f.Broadcast(&cache.DoctorDateSnapshot{DoctorID: doctorID, Date: date.String(), WaitingCount: 3})
	require.NoError(t, err)

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"waiting_count":3`)
}
