package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"digidiary/internal/domain"
	"digidiary/internal/websocket"

	ws "github.com/gorilla/websocket"
)

// Event is a note change announced by the server for another device of the
// same user.
type Event struct {
	Type      websocket.MessageType
	NoteID    int64
	UpdatedAt int64
	DeviceID  string
}

// Listener receives note change events over the server websocket.
type Listener struct {
	baseURL  string
	tokens   TokenSource
	deviceID string
	dialer   *ws.Dialer
	logger   *slog.Logger
}

func NewListener(baseURL string, tokens TokenSource, deviceID string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = discardLogger
	}
	return &Listener{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokens:   tokens,
		deviceID: deviceID,
		dialer:   ws.DefaultDialer,
		logger:   logger,
	}
}

func (l *Listener) endpoint(token string) (string, error) {
	u, err := url.Parse(l.baseURL + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"token": {token}, "device_id": {l.deviceID}}.Encode()
	return u.String(), nil
}

// Listen delivers events to handle until ctx is done or the connection
// drops. It returns nil when ctx ended the session.
func (l *Listener) Listen(ctx context.Context, handle func(Event)) error {
	token, err := l.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	endpoint, err := l.endpoint(token)
	if err != nil {
		return fmt.Errorf("%w: invalid server url: %w", domain.ErrRemote, err)
	}

	conn, _, err := l.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to connect: %w", domain.ErrRemote, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: connection lost: %w", domain.ErrRemote, err)
		}

		// the server batches queued messages into one frame
		for _, raw := range bytes.Split(frame, []byte{'\n'}) {
			if ev, ok := l.decode(raw); ok {
				handle(ev)
			}
		}
	}
}

func (l *Listener) decode(raw []byte) (Event, bool) {
	var msg websocket.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		l.logger.Warn("ignoring unreadable event", "error", err)
		return Event{}, false
	}

	switch msg.Type {
	case websocket.TypeNoteSaved, websocket.TypeNoteDeleted:
	default:
		return Event{}, false
	}

	var payload websocket.NoteChangePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		l.logger.Warn("ignoring unreadable event payload", "type", msg.Type, "error", err)
		return Event{}, false
	}

	return Event{
		Type:      msg.Type,
		NoteID:    payload.NoteID,
		UpdatedAt: payload.UpdatedAt,
		DeviceID:  payload.DeviceID,
	}, true
}
