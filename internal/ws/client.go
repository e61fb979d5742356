package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/goroutine"
	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Типы сообщений протокола ленты.
const (
	MessageFeedView  = "feed_view"
	MessageError     = "error"
	CommandSetSort   = "set_sort"
	CommandSetFilter = "set_filter"
	CommandSetScope  = "set_scope"
	CommandSetPage   = "set_page"
)

// Envelope сообщение в обе стороны: type содержит имя события, data полезную нагрузку.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type errorPayload struct {
	Code    apperror.ErrorCode `json:"code"`
	Message string             `json:"message"`
}

type sortCommand struct {
	Key       string `json:"key"`
	Direction string `json:"direction"`
}

type filterCommand struct {
	Status     []string `json:"status"`
	Areas      []string `json:"areas"`
	Categories []string `json:"categories"`
}

type scopeCommand struct {
	Scope string `json:"scope"`
}

type pageCommand struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Client одно подключение WebSocket со своей лентой.
type Client struct {
	id       uuid.UUID
	campusID string
	conn     *websocket.Conn
	hub      *Hub
	feed     *feed.Feed
	send     chan []byte
	done     chan struct{}

	closeOnce sync.Once
	detach    func()
}

// NewClient создаёт клиента. Лента переходит во владение клиента.
func NewClient(conn *websocket.Conn, hub *Hub, campusID string, f *feed.Feed) *Client {
	return &Client{
		id:       uuid.New(),
		campusID: campusID,
		conn:     conn,
		hub:      hub,
		feed:     f,
		send:     make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

// ID идентификатор клиента.
func (c *Client) ID() uuid.UUID {
	return c.id
}

func (c *Client) log() *logrus.Entry {
	return logger.ForCampus(c.campusID).WithField("client_id", c.id)
}

// Run отправляет текущую страницу и обрабатывает сообщения до разрыва соединения.
func (c *Client) Run(ctx context.Context) {
	c.detach = c.feed.OnChange(c.pushView)
	c.feed.Refresh()

	goroutine.SafeGo(c.writePump)
	c.readPump(ctx)
}

// Close закрывает соединение и ленту. Повторный вызов безопасен.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.detach != nil {
			c.detach()
		}
		c.feed.Close()
		c.hub.Unregister(c)
		_ = c.conn.Close()
	})
}

func (c *Client) pushView(view feed.View) {
	c.enqueue(outbound{Type: MessageFeedView, Data: view})
}

func (c *Client) pushError(err error) {
	c.enqueue(outbound{Type: MessageError, Data: errorPayload{Code: apperror.CodeOf(err), Message: err.Error()}})
}

func (c *Client) enqueue(msg outbound) {
	raw, err := json.Marshal(msg)
	if err != nil {
		c.log().WithError(err).Error("ws: не удалось сериализовать сообщение")
		return
	}
	select {
	case <-c.done:
	case c.send <- raw:
	default:
		// Клиент не успевает читать: закрываем асинхронно, чтобы не блокировать ленту.
		c.log().Warn("ws: буфер клиента переполнен, отключаем")
		goroutine.SafeGo(c.Close)
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log().WithError(err).Debug("ws: соединение прервано")
			}
			return
		}

		if !goroutine.SafeRun("ws.handleCommand", func() { c.handleCommand(ctx, raw) }) {
			return
		}
	}
}

// handleCommand применяет команду к ленте. Ошибки отправляются клиенту,
// соединение остаётся открытым.
func (c *Client) handleCommand(ctx context.Context, raw []byte) {
	if err := c.applyCommand(ctx, raw); err != nil {
		c.pushError(err)
	}
}

func (c *Client) applyCommand(_ context.Context, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeBadRequest, "некорректное сообщение")
	}

	switch env.Type {
	case CommandSetSort:
		var cmd sortCommand
		if err := decodeData(env.Data, &cmd); err != nil {
			return err
		}
		c.feed.SetSort(feed.Sort{Key: feed.SortKey(cmd.Key), Direction: feed.ParseDirection(cmd.Direction)})
	case CommandSetFilter:
		var cmd filterCommand
		if err := decodeData(env.Data, &cmd); err != nil {
			return err
		}
		c.feed.SetFilter(feed.FilterFromLists(cmd.Status, cmd.Areas, cmd.Categories))
	case CommandSetScope:
		var cmd scopeCommand
		if err := decodeData(env.Data, &cmd); err != nil {
			return err
		}
		scope, err := feed.ParseViewScope(cmd.Scope)
		if err != nil {
			return err
		}
		return c.feed.SetScope(scope)
	case CommandSetPage:
		var cmd pageCommand
		if err := decodeData(env.Data, &cmd); err != nil {
			return err
		}
		if cmd.PageSize != 0 {
			if err := c.feed.SetPageSize(cmd.PageSize); err != nil {
				return err
			}
		}
		c.feed.SetPage(cmd.Page)
	default:
		return apperror.New(apperror.ErrCodeBadRequest, fmt.Sprintf("неизвестная команда %q", env.Type))
	}
	return nil
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return apperror.New(apperror.ErrCodeBadRequest, "пустое поле data")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeBadRequest, "некорректное поле data")
	}
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
