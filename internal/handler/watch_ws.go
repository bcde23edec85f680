package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"neargo/config"
	"neargo/internal/auth"
	"neargo/internal/query"
	"neargo/internal/watch"
	"neargo/internal/ws"
	"neargo/pkg/location"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// UpgradeWatchWS upgrades to a WebSocket carrying joined/moved/left
// events for a watched region; query: token, lat, lng, radius_m. The
// watch lives exactly as long as the connection: closing it (or the
// client vanishing past the ping deadline) releases the watch.
func UpgradeWatchWS(cfg *config.Config, hub *watch.Hub, engine *query.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		claims, err := auth.ParseToken(&cfg.JWT, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
		lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
		if latErr != nil || lngErr != nil || !location.ValidCoords(lat, lng) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "valid lat and lng required"})
			return
		}
		radiusM, _ := strconv.ParseFloat(c.Query("radius_m"), 64)
		radiusM = engine.ClampRadius(radiusM)

		conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		w, err := hub.Add(claims.UserID, lat, lng, radiusM)
		if err != nil {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"watch limit reached"}`))
			return
		}
		client := ws.NewClient(claims.UserID, conn, cap(w.Events))
		defer func() {
			hub.Remove(w.ID)
			client.Close()
		}()

		// forward watch events onto the connection's send queue
		go func() {
			for ev := range w.Events {
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				client.Enqueue(data)
			}
			client.Close()
		}()
		go client.WritePump()
		client.ReadPump()
	}
}
