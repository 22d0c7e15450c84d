package api

import (
	"net/http"

	"hotelstock/server/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeStockWS подключает клиента к рассылке событий его отеля.
// Токен передается в query-параметре token (браузер не задает заголовки для WebSocket)
func ServeStockWS(hub *StockHub, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ParseStaffToken(jwtSecret, c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Недействительный или просроченный токен"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			config.GetLogger().WithError(err).Warn("Ошибка обновления WebSocket соединения")
			return
		}

		logger := config.GetLogger().WithFields(logrus.Fields{"staff_id": claims.StaffID, "hotel_id": claims.HotelID})
		hub.AddClient(conn, claims.HotelID)
		logger.WithField("clients", hub.GetClientsCount()).Info("WebSocket клиент подключен")

		defer func() {
			hub.RemoveClient(conn)
			logger.WithField("clients", hub.GetClientsCount()).Info("WebSocket клиент отключен")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.WithError(err).Warn("WebSocket ошибка")
				}
				break
			}
		}
	}
}
