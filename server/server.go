// Package server exposes the chat pipeline over a websocket so a browser
// client can stream answers. Each connection carries its own session
// accumulators.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xhad/quill/pkg/llm"
	"github.com/xhad/quill/pkg/search"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the wire format in both directions. Inbound messages carry
// Type "query"; outbound types are "results", "stream", "done" and
// "error".
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type Config struct {
	Addr      string
	TopK      int
	Streaming bool
}

type WSServer struct {
	config       Config
	chatEngine   *llm.ChatEngine
	searchEngine *search.Engine
}

func NewWSServer(config Config, chatEngine *llm.ChatEngine, searchEngine *search.Engine) (*WSServer, error) {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.TopK == 0 {
		config.TopK = search.DefaultMaxResults
	}

	return &WSServer{
		config:       config,
		chatEngine:   chatEngine,
		searchEngine: searchEngine,
	}, nil
}

func (s *WSServer) Start() error {
	http.HandleFunc("/ws", s.handleWebSocket)
	log.Printf("WebSocket server listening on %s", s.config.Addr)
	return http.ListenAndServe(s.config.Addr, nil)
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := llm.NewSession()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("Error reading message: %v", err)
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		if msg.Type != "query" || strings.TrimSpace(msg.Content) == "" {
			continue
		}

		s.handleQuery(r.Context(), conn, msg.Content, session)
	}
}

func (s *WSServer) handleQuery(ctx context.Context, conn *websocket.Conn, query string, session *llm.Session) {
	results, err := s.searchEngine.Search(ctx, query, "", s.config.TopK)
	if err != nil {
		s.sendMessage(conn, "error", err.Error())
		return
	}
	s.sendMessage(conn, "results", search.FormatResults(results))

	if s.config.Streaming {
		stream, err := s.chatEngine.ChatStream(ctx, query, results, session)
		if err != nil {
			s.sendMessage(conn, "error", err.Error())
			return
		}
		for chunk := range stream {
			if strings.HasPrefix(chunk, "Error:") {
				s.sendMessage(conn, "error", chunk)
				return
			}
			s.sendMessage(conn, "stream", chunk)
		}
		s.sendMessage(conn, "done", "")
		return
	}

	response, err := s.chatEngine.Chat(ctx, query, results, session)
	if err != nil {
		s.sendMessage(conn, "error", err.Error())
		return
	}
	s.sendMessage(conn, "done", response)
}

func (s *WSServer) sendMessage(conn *websocket.Conn, msgType, content string) {
	msg := Message{Type: msgType, Content: content}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
