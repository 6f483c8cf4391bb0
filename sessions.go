package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	iface "LayoutOcrServer/interface"
	"LayoutOcrServer/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// session is one allocated websocket OCR stream. Clients push base64
// images and receive one envelope per image; idle sessions are
// released automatically.
type session struct {
	id          string
	mu          sync.Mutex
	lastActive  time.Time
	conn        *websocket.Conn
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	cancelTimer chan struct{}
	cancelOnce  sync.Once
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive)
}

func (s *session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *session) getConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

type sessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	pipe        runner
	idleTimeout time.Duration
	upgrader    websocket.Upgrader
}

func newSessionManager(pipe runner, idleTimeout time.Duration) *sessionManager {
	return &sessionManager{
		sessions:    map[string]*session{},
		pipe:        pipe,
		idleTimeout: idleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (m *sessionManager) alloc(c *gin.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:          uuid.New().String(),
		lastActive:  time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		cancelTimer: make(chan struct{}),
	}
	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()
	// The idle clock runs from allocation, so sessions that never
	// connect are still reclaimed.
	m.startIdleMonitor(sess)
	c.JSON(http.StatusOK, gin.H{
		"sessionID": sess.id,
		"wsURL":     fmt.Sprintf("ws://%s/ws/%s", c.Request.Host, sess.id),
		"timeoutMs": m.idleTimeout.Milliseconds(),
	})
}

func (m *sessionManager) release(sessionID string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	sess.closeOnce.Do(func() {
		if conn := sess.getConn(); conn != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session released"))
			_ = conn.Close()
		}
	})
	sess.cancelOnce.Do(func() {
		close(sess.cancelTimer)
	})
	sess.cancel()
	return true
}

func (m *sessionManager) releaseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.release(id)
	}
}

func (m *sessionManager) releaseHandler(c *gin.Context) {
	if !m.release(c.Param("sessionID")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "Session released"})
}

func (m *sessionManager) startIdleMonitor(sess *session) {
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-sess.cancelTimer:
				return
			case <-ticker.C:
				if sess.idleFor() > m.idleTimeout {
					m.release(sess.id)
					logger.Log().Info("session idle timeout", zap.String("session", sess.id))
					return
				}
			}
		}
	}()
}

func (m *sessionManager) serveWS(c *gin.Context) {
	sessionID := c.Param("sessionID")
	m.mu.RLock()
	sess, exists := m.sessions[sessionID]
	m.mu.RUnlock()
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote its own response.
		return
	}
	sess.setConn(conn)
	conn.SetReadLimit(20 * 1024 * 1024)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			m.release(sessionID)
			logger.Log().Info("session connection closed",
				zap.String("session", sessionID), zap.Error(err))
			return
		}
		sess.touch()
		switch mt {
		case websocket.TextMessage:
			frame, err := base64ToFrame(string(msg))
			if err != nil {
				_ = conn.WriteJSON(iface.ErrResponse(fmt.Sprintf("invalid image: %v", err)))
				continue
			}
			status, resp := m.pipe.RunWholeImageOcr(sess.ctx, frame)
			_ = conn.WriteJSON(gin.H{"status": status, "response": resp})
		default:
			_ = conn.WriteJSON(iface.ErrResponse("unsupported message type"))
		}
	}
}

// base64ToFrame decodes a base64 image string, tolerating a
// data:image/... URL prefix.
func base64ToFrame(b64 string) (iface.Frame, error) {
	contentType := ""
	if strings.HasPrefix(b64, "data:") {
		if i := strings.Index(b64, ","); i != -1 {
			header := b64[:i]
			if j := strings.Index(header, ";"); j != -1 {
				contentType = header[len("data:"):j]
			}
			b64 = b64[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return iface.Frame{}, err
	}
	return iface.Frame{Bytes: data, ContentType: contentType}, nil
}
