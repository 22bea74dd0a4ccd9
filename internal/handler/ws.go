package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"story-weaver/internal/controller"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Время на запись сообщения клиенту.
	writeWait = 10 * time.Second
	// Время ожидания следующего pong от клиента.
	pongWait = 60 * time.Second
	// Период пингов. Должен быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Клиенты только слушают, входящие сообщения игнорируются.
	maxMessageSize = 512
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// viewer - одно websocket соединение визуализации.
type viewer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	// status даёт текущий снимок в момент регистрации
	status func() controller.Status
	// lastSeq меняется только в цикле Run
	lastSeq uint64
}

// snapshot - сериализованный статус вместе с его Seq.
type snapshot struct {
	seq  uint64
	data []byte
}

// Hub рассылает снимки дерева всем подключённым зрителям.
// Зрители ничего не меняют в истории.
type Hub struct {
	viewers    map[string]*viewer
	register   chan *viewer
	unregister chan string
	broadcast  chan snapshot
	done       chan struct{}
	logger     *zap.Logger
}

// NewHub создает хаб. Цикл обработки запускается через Run.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		viewers:    make(map[string]*viewer),
		register:   make(chan *viewer),
		unregister: make(chan string),
		broadcast:  make(chan snapshot),
		done:       make(chan struct{}),
		logger:     logger.Named("VisualizationHub"),
	}
}

// Run обрабатывает регистрацию и рассылку до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Visualization hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, v := range h.viewers {
				close(v.send)
				delete(h.viewers, id)
			}
			h.logger.Info("Visualization hub stopped")
			return

		case v := <-h.register:
			// снимок берётся уже после регистрации: следующие рассылки новее его
			status := v.status()
			data, err := json.Marshal(newStoryResponse(status))
			if err != nil {
				h.logger.Error("Failed to marshal initial snapshot", zap.String("viewer_id", v.id), zap.Error(err))
				close(v.send)
				continue
			}
			v.send <- data
			v.lastSeq = status.Seq
			h.viewers[v.id] = v
			h.logger.Debug("Viewer registered", zap.String("viewer_id", v.id), zap.Uint64("seq", status.Seq), zap.Int("viewers", len(h.viewers)))

		case id := <-h.unregister:
			if v, ok := h.viewers[id]; ok {
				delete(h.viewers, id)
				close(v.send)
				h.logger.Debug("Viewer unregistered", zap.String("viewer_id", id))
			}

		case message := <-h.broadcast:
			for id, v := range h.viewers {
				if message.seq <= v.lastSeq {
					h.logger.Debug("Skipping outdated snapshot", zap.String("viewer_id", id), zap.Uint64("seq", message.seq), zap.Uint64("last_seq", v.lastSeq))
					continue
				}
				select {
				case v.send <- message.data:
					v.lastSeq = message.seq
				default:
					// медленный зритель: отключаем, при переподключении он получит актуальный снимок
					h.logger.Warn("Viewer send queue is full, dropping connection", zap.String("viewer_id", id))
					delete(h.viewers, id)
					close(v.send)
				}
			}
		}
	}
}

// Broadcast рассылает статус всем зрителям. Подходит как controller.Observer.
// Зритель, уже получивший снимок с тем же или большим Seq, его пропускает.
func (h *Hub) Broadcast(status controller.Status) {
	data, err := json.Marshal(newStoryResponse(status))
	if err != nil {
		h.logger.Error("Failed to marshal story snapshot", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- snapshot{seq: status.Seq, data: data}:
	case <-h.done:
	}
}

// ServeWS подключает зрителя. Текущий снимок отправляет хаб при регистрации.
func (h *Hub) ServeWS(ctrl StoryController) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// upgrader уже записал ответ
			h.logger.Warn("Failed to upgrade connection", zap.Error(err))
			return
		}

		v := &viewer{
			id:     uuid.NewString(),
			conn:   conn,
			send:   make(chan []byte, sendBufferSize),
			status: ctrl.Status,
		}
		log := h.logger.With(zap.String("viewer_id", v.id))

		select {
		case h.register <- v:
		case <-h.done:
			_ = conn.Close()
			return
		}
		log.Info("Viewer connected")

		go v.writePump(log)
		go v.readPump(h, log)
	}
}

func (v *viewer) readPump(h *Hub, log *zap.Logger) {
	defer func() {
		select {
		case h.unregister <- v.id:
		case <-h.done:
		}
		_ = v.conn.Close()
		log.Info("Viewer disconnected")
	}()
	v.conn.SetReadLimit(maxMessageSize)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (v *viewer) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = v.conn.Close()
	}()
	for {
		select {
		case message, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("Failed to write snapshot", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
