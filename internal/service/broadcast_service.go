package service

import (
	"digidiary/internal/websocket"
)

// Broadcaster fans note changes out to the other connected devices of a user.
type Broadcaster interface {
	NoteSaved(userID, deviceID string, noteID, updatedAt int64) error
	NoteDeleted(userID, deviceID string, noteID, updatedAt int64) error
}

type BroadcastService struct {
	wsManager *websocket.Manager
}

func NewBroadcastService(wsManager *websocket.Manager) *BroadcastService {
	return &BroadcastService{
		wsManager: wsManager,
	}
}

func (s *BroadcastService) NoteSaved(userID, deviceID string, noteID, updatedAt int64) error {
	return s.broadcast(websocket.TypeNoteSaved, userID, deviceID, noteID, updatedAt)
}

func (s *BroadcastService) NoteDeleted(userID, deviceID string, noteID, updatedAt int64) error {
	return s.broadcast(websocket.TypeNoteDeleted, userID, deviceID, noteID, updatedAt)
}

func (s *BroadcastService) broadcast(msgType websocket.MessageType, userID, deviceID string, noteID, updatedAt int64) error {
	msg, err := websocket.NewMessage(msgType, &websocket.NoteChangePayload{
		NoteID:    noteID,
		UpdatedAt: updatedAt,
		DeviceID:  deviceID,
	})
	if err != nil {
		return err
	}

	return s.wsManager.BroadcastToUser(userID, msg, deviceID)
}
