package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/visagelab/talkinghead/internal/audio"
	"github.com/visagelab/talkinghead/internal/config"
)

// WSSpeechMessage carries one speech chunk over the ingress socket. Samples
// are base64-encoded audio bytes in the declared encoding.
type WSSpeechMessage struct {
	Type           string    `json:"type"`
	Samples        string    `json:"samples"`
	Encoding       string    `json:"encoding,omitempty"`
	Words          []string  `json:"words,omitempty"`
	WordStartTimes []float64 `json:"wtimes,omitempty"`
	WordDurations  []float64 `json:"wdurations,omitempty"`
	Mood           string    `json:"mood,omitempty"`
}

// WSControlMessage carries non-speech commands: "stop", "mood".
type WSControlMessage struct {
	Type string `json:"type"`
	Mood string `json:"mood,omitempty"`
}

// Ingress streams speech chunks from an upstream speech service into a
// session over WebSocket, reconnecting on failure.
type Ingress struct {
	cfg     config.IngressConfig
	session *Session
	logger  zerolog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
}

// NewIngress creates an ingress bound to a session. It does not connect
// until Connect is called.
func NewIngress(cfg config.IngressConfig, session *Session, logger zerolog.Logger) *Ingress {
	return &Ingress{
		cfg:     cfg,
		session: session,
		logger:  logger.With().Str("component", "ingress").Logger(),
	}
}

// Connect starts the connection loop in the background.
func (in *Ingress) Connect(ctx context.Context) error {
	if in.cfg.URL == "" {
		return fmt.Errorf("ingress url not configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	in.cancel = cancel

	go in.connectLoop(ctx)
	return nil
}

// Disconnect stops the connection loop and closes the socket.
func (in *Ingress) Disconnect() {
	if in.cancel != nil {
		in.cancel()
	}
	in.mu.Lock()
	if in.conn != nil {
		in.conn.Close()
		in.conn = nil
	}
	in.connected = false
	in.mu.Unlock()
}

// IsConnected returns connection status.
func (in *Ingress) IsConnected() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.connected
}

// connectLoop maintains the WebSocket connection with reconnection
func (in *Ingress) connectLoop(ctx context.Context) {
	delay := in.cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := in.readPump(ctx)
		in.mu.Lock()
		in.connected = false
		in.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		attempts++
		if in.cfg.MaxReconnects > 0 && attempts > in.cfg.MaxReconnects {
			in.logger.Error().Int("attempts", attempts).Msg("Giving up on speech ingress")
			return
		}

		in.logger.Warn().Err(err).Int("attempt", attempts).Msg("Ingress connection lost, reconnecting...")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// readPump dials and drains messages until the connection drops.
func (in *Ingress) readPump(ctx context.Context) error {
	u, err := url.Parse(in.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	in.logger.Info().Str("url", u.String()).Msg("Connecting to speech ingress")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	in.mu.Lock()
	in.conn = conn
	in.connected = true
	in.mu.Unlock()

	in.logger.Info().Msg("Speech ingress connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("read: %w", err)
			}
			in.handleMessage(raw)
		}
	}
}

// handleMessage decodes one inbound message and routes it to the session.
func (in *Ingress) handleMessage(raw []byte) {
	var typeMsg struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(raw, &typeMsg); err != nil {
		in.logger.Warn().Err(err).Msg("Failed to parse message type")
		return
	}

	switch typeMsg.Type {
	case "speech":
		var msg WSSpeechMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			in.logger.Warn().Err(err).Msg("Failed to parse speech message")
			return
		}

		samples, err := base64.StdEncoding.DecodeString(msg.Samples)
		if err != nil {
			in.logger.Warn().Err(err).Msg("Bad sample payload, dropping chunk")
			return
		}

		chunk := SpeechChunk{
			Samples:        samples,
			Encoding:       audio.Encoding(msg.Encoding),
			Words:          msg.Words,
			WordStartTimes: msg.WordStartTimes,
			WordDurations:  msg.WordDurations,
			Mood:           msg.Mood,
		}
		if err := in.session.StreamAudio(chunk); err != nil {
			in.logger.Warn().Err(err).Msg("Chunk rejected")
		}

	case "stop":
		in.session.StopSpeaking()

	case "mood":
		var msg WSControlMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			in.logger.Warn().Err(err).Msg("Failed to parse mood message")
			return
		}
		in.session.SetMood(msg.Mood)

	default:
		in.logger.Debug().Str("type", typeMsg.Type).Msg("Unknown message type")
	}
}
