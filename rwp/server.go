package rwp

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xraph/forge"
)

// Server handles RWP connections over WebSocket and HTTP RPC. Connected
// workers bind their worker ID at auth time; the offer notifier pushes
// offer lifecycle events to the bound connections.
type Server struct {
	handler      *Handler
	auth         Authenticator
	defaultCodec Codec
	conns        *ConnectionManager
	logger       *slog.Logger
	basePath     string
}

// NewServer creates a new RWP server.
func NewServer(handler *Handler, opts ...Option) *Server {
	s := &Server{
		handler:      handler,
		defaultCodec: JSONCodec{},
		conns:        NewConnectionManager(),
		logger:       slog.Default(),
		basePath:     "/rwp",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = NoopAuthenticator{}
	}
	return s
}

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// RegisterRoutes mounts RWP endpoints on a Forge router.
func (s *Server) RegisterRoutes(router forge.Router) {
	// Primary: WebSocket
	if err := router.WebSocket(s.basePath, s.handleWebSocket); err != nil {
		s.logger.Error("failed to register RWP WebSocket", slog.String("error", err.Error()))
	}

	// One-shot: HTTP RPC
	if err := router.POST(s.basePath+"/rpc", s.handleHTTPRPC); err != nil {
		s.logger.Error("failed to register RWP RPC", slog.String("error", err.Error()))
	}
}

// handleWebSocket is the main WebSocket connection handler.
func (s *Server) handleWebSocket(ctx forge.Context, conn forge.Connection) error {
	connID := conn.ID()
	s.logger.Info("RWP WebSocket connected", slog.String("conn_id", connID))

	// Wait for auth frame.
	authData, readErr := conn.Read()
	if readErr != nil {
		return fmt.Errorf("rwp: read auth frame: %w", readErr)
	}

	// Auth frames are always JSON (before codec negotiation).
	var authFrame Frame
	if err := json.Unmarshal(authData, &authFrame); err != nil {
		//nolint:errcheck // best-effort error response before disconnect
		conn.WriteJSON(NewErrorFrame("", ErrCodeBadRequest, "invalid auth frame"))
		return fmt.Errorf("rwp: unmarshal auth frame: %w", err)
	}

	if authFrame.Method != MethodAuth {
		//nolint:errcheck // best-effort error response before disconnect
		conn.WriteJSON(NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "first frame must be auth"))
		return fmt.Errorf("rwp: expected auth frame, got %q", authFrame.Method)
	}

	// Parse auth request.
	var authReq AuthRequest
	if len(authFrame.Data) > 0 {
		if err := json.Unmarshal(authFrame.Data, &authReq); err != nil {
			//nolint:errcheck // best-effort error response before disconnect
			conn.WriteJSON(NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "invalid auth data"))
			return err
		}
	}

	// Authenticate.
	token := authReq.Token
	if token == "" {
		token = authFrame.Token
	}
	identity, authErr := s.auth.Authenticate(ctx.Context(), token)
	if authErr != nil {
		//nolint:errcheck // best-effort error response before disconnect
		conn.WriteJSON(NewErrorFrame(authFrame.ID, ErrCodeUnauthorized, "authentication failed"))
		return fmt.Errorf("rwp: auth failed: %w", authErr)
	}

	// Negotiate codec.
	codec := s.defaultCodec
	if authReq.Format != "" {
		codec = GetCodec(authReq.Format)
	}

	// Create connection state. The send sink lets the offer notifier
	// push event frames to this worker's socket.
	rwpConn := NewConnection(connID, identity, authReq.WorkerID, codec, func(f *Frame) error {
		return s.writeFrame(conn, codec, f)
	})
	s.conns.Add(rwpConn)
	defer func() {
		s.conns.Remove(connID)
		s.logger.Info("RWP WebSocket disconnected", slog.String("conn_id", connID))
	}()

	// Send auth response.
	resp, respErr := NewResponseFrame(authFrame.ID, AuthResponse{
		Format:    codec.Name(),
		SessionID: connID,
	})
	if respErr != nil {
		return fmt.Errorf("rwp: marshal auth response: %w", respErr)
	}
	if err := s.writeFrame(conn, codec, resp); err != nil {
		return err
	}

	s.logger.Info("RWP authenticated",
		slog.String("conn_id", connID),
		slog.String("subject", identity.Subject),
		slog.String("worker_id", rwpConn.WorkerID),
		slog.String("codec", codec.Name()),
	)

	// Frame processing loop.
	for {
		data, err := conn.Read()
		if err != nil {
			return nil // Connection closed.
		}

		rwpConn.Touch()

		frame, decErr := codec.Decode(data)
		if decErr != nil {
			errFrame := NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+decErr.Error())
			if writeErr := s.writeFrame(conn, codec, errFrame); writeErr != nil {
				s.logger.Warn("failed to write error frame", slog.String("error", writeErr.Error()))
			}
			continue
		}

		// Handle ping/pong.
		if frame.Type == FramePing {
			pong := &Frame{
				ID:        GenerateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			}
			if writeErr := s.writeFrame(conn, codec, pong); writeErr != nil {
				s.logger.Warn("failed to write pong frame", slog.String("error", writeErr.Error()))
			}
			continue
		}

		// Check authorization for the method.
		if frame.Method != "" {
			reqScope := RequiredScope(frame.Method)
			if reqScope != "" && !identity.HasScope(reqScope) {
				errFrame := NewErrorFrame(frame.ID, ErrCodeForbidden, "insufficient permissions")
				if writeErr := s.writeFrame(conn, codec, errFrame); writeErr != nil {
					s.logger.Warn("failed to write forbidden frame", slog.String("error", writeErr.Error()))
				}
				continue
			}
		}

		// Dispatch to handler.
		respFrame := s.handler.Handle(ctx.Context(), frame, rwpConn)
		if respFrame != nil {
			if writeErr := s.writeFrame(conn, codec, respFrame); writeErr != nil {
				s.logger.Warn("failed to write response frame", slog.String("error", writeErr.Error()))
			}
		}
	}
}

// writeFrame encodes and writes a frame to a Forge connection.
func (s *Server) writeFrame(conn forge.Connection, codec Codec, frame *Frame) error {
	if codec.Name() == CodecNameJSON {
		return conn.WriteJSON(frame)
	}
	data, err := codec.Encode(frame)
	if err != nil {
		return err
	}
	return conn.Write(data)
}

// handleHTTPRPC handles one-shot HTTP RPC requests for simple operations.
func (s *Server) handleHTTPRPC(ctx forge.Context) error {
	// Parse the frame from the request body.
	var frame Frame
	if err := ctx.Bind(&frame); err != nil {
		return ctx.Status(400).JSON(NewErrorFrame("", ErrCodeBadRequest, "invalid request body"))
	}

	// Authenticate.
	token := frame.Token
	if token == "" {
		token = ctx.Header("Authorization")
	}
	identity, err := s.auth.Authenticate(ctx.Context(), token)
	if err != nil {
		return ctx.Status(401).JSON(NewErrorFrame(frame.ID, ErrCodeUnauthorized, "unauthorized"))
	}

	// Check authorization.
	reqScope := RequiredScope(frame.Method)
	if reqScope != "" && !identity.HasScope(reqScope) {
		return ctx.Status(403).JSON(NewErrorFrame(frame.ID, ErrCodeForbidden, "forbidden"))
	}

	// One-shot connections carry no worker binding and cannot receive
	// pushed offer events.
	conn := NewConnection("rpc-"+GenerateFrameID(), identity, "", JSONCodec{}, func(*Frame) error {
		return nil
	})

	// Dispatch.
	resp := s.handler.Handle(ctx.Context(), &frame, conn)
	if resp == nil {
		return ctx.NoContent(204)
	}

	status := 200
	if resp.Type == FrameErr && resp.Error != nil {
		status = resp.Error.Code
		if status < 100 || status > 599 {
			status = 500
		}
	}

	return ctx.Status(status).JSON(resp)
}
