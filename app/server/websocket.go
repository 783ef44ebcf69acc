package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	frameChat         = "chat"
	frameChatResponse = "chat_response"
	frameTask         = "task"
	framePing         = "ping"
	frameTaskResponse = "task_response"
	framePong         = "pong"
	frameError        = "error"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// handleWebSocket serves frames sequentially on one connection; a task or
// chat frame blocks the connection until it is answered. A frame without a
// type is a chat frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("remote", r.RemoteAddr).Logger()
	logger.Info().Msg("🔌 WebSocket connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("⚠️ WebSocket read error")
			}
			logger.Info().Msg("🔌 WebSocket disconnected")
			return
		}

		reply := s.handleFrame(r, data)
		if err = conn.WriteJSON(reply); err != nil {
			logger.Warn().Err(err).Msg("⚠️ WebSocket write error")
			return
		}
	}
}

func (s *Server) handleFrame(r *http.Request, data []byte) outFrame {
	var in frame
	if err := json.Unmarshal(data, &in); err != nil {
		return errorFrame("invalid frame: " + err.Error())
	}

	switch in.Type {
	case frameChat, "":
		req, err := decodeChat(in.Data)
		if err != nil {
			return errorFrame(err.Error())
		}
		reply, err := s.executor.Chat(r.Context(), req)
		if err != nil {
			return errorFrame(err.Error())
		}
		return outFrame{Type: frameChatResponse, Data: chatResponse{ChatReply: reply, Timestamp: time.Now().Format(time.RFC3339)}}
	case framePing:
		return outFrame{Type: framePong}
	case frameTask:
		req, err := decodeTask(in.Data)
		if err != nil {
			return errorFrame(err.Error())
		}
		result := s.executor.ExecuteTask(r.Context(), req)
		return outFrame{Type: frameTaskResponse, Data: taskResponse{
			Task:      req.Task,
			Result:    result,
			Timestamp: time.Now().Format(time.RFC3339),
		}}
	default:
		return errorFrame("unknown frame type: " + in.Type)
	}
}

func errorFrame(message string) outFrame {
	return outFrame{Type: frameError, Data: map[string]string{"message": message}}
}
