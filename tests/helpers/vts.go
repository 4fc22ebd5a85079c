package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/jiuai233/StreamDeck/internal/protocol"
)

// Behavior decides how the fake answers one request.
type Behavior int

const (
	// Respond answers normally, or with ErrorMessage when set.
	Respond Behavior = iota
	// Silent never answers, like a remote stuck behind a dialog.
	Silent
	// Drop closes the connection without answering.
	Drop
	// Empty answers with the expected message type and null data.
	Empty
)

// Reply is one scripted answer.
type Reply struct {
	Behavior     Behavior
	ErrorID      int
	ErrorMessage string
}

// Error is a scripted APIError reply.
func Error(message string) Reply {
	return Reply{ErrorID: 8, ErrorMessage: message}
}

// FakeVTS is an in-process VTube Studio API. Requests that are not scripted
// get a plausible answer based on Models and Hotkeys.
type FakeVTS struct {
	Models    []protocol.Model
	Hotkeys   map[string][]protocol.Hotkey
	FileNames map[string]string
	Token     string

	// AuthOngoing makes the token request fail as if a popup were already open.
	AuthOngoing bool
	// RejectAuth makes token redemption report authenticated=false.
	RejectAuth bool
	// ReportAs maps a loaded model id to the id the current model request
	// reports instead, like a remote that switched models behind our back.
	ReportAs map[string]string

	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	script      map[string][]Reply
	current     string
	requests    []protocol.Request
	connections int
	open        []*websocket.Conn
}

// NewFakeVTS starts the fake and stops it when the test ends.
func NewFakeVTS(t *testing.T) *FakeVTS {
	t.Helper()

	f := &FakeVTS{
		Hotkeys:   make(map[string][]protocol.Hotkey),
		FileNames: make(map[string]string),
		Token:     "fake-token",
		ReportAs:  make(map[string]string),
		script:    make(map[string][]Reply),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/", f.handleWebSocket)
	f.server = httptest.NewServer(e)

	t.Cleanup(f.Close)
	return f
}

// URL is the websocket endpoint of the fake.
func (f *FakeVTS) URL() string {
	return "ws://" + strings.TrimPrefix(f.server.URL, "http://")
}

// Close closes every open connection and stops the server.
func (f *FakeVTS) Close() {
	f.mu.Lock()
	for _, c := range f.open {
		_ = c.Close()
	}
	f.open = nil
	f.mu.Unlock()
	f.server.Close()
}

// On queues replies for a message type. They are used in order, after which
// requests of that type are answered normally again.
func (f *FakeVTS) On(messageType string, replies ...Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[messageType] = append(f.script[messageType], replies...)
}

// Requests returns every request received, in arrival order.
func (f *FakeVTS) Requests() []protocol.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Count returns how many requests of a type arrived.
func (f *FakeVTS) Count(messageType string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.MessageType == messageType {
			n++
		}
	}
	return n
}

// Connections returns how many websocket connections were accepted.
func (f *FakeVTS) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections
}

// CurrentModel returns the id of the loaded model.
func (f *FakeVTS) CurrentModel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FakeVTS) handleWebSocket(c echo.Context) error {
	ws, err := f.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.connections++
	f.open = append(f.open, ws)
	f.mu.Unlock()

	defer ws.Close()

	authed := false
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		reply := f.record(req)
		switch reply.Behavior {
		case Silent:
			continue
		case Drop:
			return nil
		}

		var resp protocol.Response
		switch {
		case reply.Behavior == Empty:
			resp = response(req, nil)
		case reply.ErrorMessage != "":
			resp = errorResponse(req, reply.ErrorID, reply.ErrorMessage)
		default:
			resp = f.respond(req, &authed)
		}
		if err := ws.WriteJSON(resp); err != nil {
			return nil
		}
	}
}

func (f *FakeVTS) record(req protocol.Request) Reply {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	queue := f.script[req.MessageType]
	if len(queue) == 0 {
		return Reply{}
	}
	f.script[req.MessageType] = queue[1:]
	return queue[0]
}

func (f *FakeVTS) respond(req protocol.Request, authed *bool) protocol.Response {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, _ := req.Data[protocol.TokenField].(string)

	switch req.MessageType {
	case protocol.TypeAuthenticationToken:
		if f.AuthOngoing {
			return errorResponse(req, 50, "Authentication is currently ongoing. Please wait for the user to accept or deny.")
		}
		return response(req, protocol.AuthenticationTokenData{AuthenticationToken: f.Token})

	case protocol.TypeAuthentication:
		ok := !f.RejectAuth && token == f.Token
		*authed = ok
		data := protocol.AuthenticationData{Authenticated: ok}
		if !ok {
			data.Reason = "Token invalid."
		}
		return response(req, data)

	case protocol.TypeAPIState:
		return response(req, protocol.APIStateData{Active: true, CurrentSessionAuthenticated: *authed})
	}

	if !*authed || token != f.Token {
		return errorResponse(req, 8, "Plugin has not been authenticated yet.")
	}

	switch req.MessageType {
	case protocol.TypeAvailableModels:
		return response(req, protocol.AvailableModelsData{NumberOfModels: len(f.Models), AvailableModels: f.Models})

	case protocol.TypeModelLoad:
		id, _ := req.Data["modelID"].(string)
		if _, ok := f.model(id); !ok {
			return errorResponse(req, 153, "No model with this ID found.")
		}
		f.current = id
		return response(req, map[string]string{"modelID": id})

	case protocol.TypeCurrentModel:
		id := f.current
		if other, swapped := f.ReportAs[id]; swapped {
			id = other
		}
		m, ok := f.model(id)
		return response(req, protocol.CurrentModelData{
			ModelLoaded:   ok,
			ModelID:       m.ModelID,
			ModelName:     m.ModelName,
			ModelFileName: f.FileNames[m.ModelID],
		})

	case protocol.TypeHotkeysInCurrentModel:
		m, ok := f.model(f.current)
		return response(req, protocol.HotkeysData{
			ModelLoaded:      ok,
			ModelID:          m.ModelID,
			ModelName:        m.ModelName,
			AvailableHotkeys: f.Hotkeys[m.ModelID],
		})
	}

	return errorResponse(req, 2, "Unknown message type "+req.MessageType)
}

func (f *FakeVTS) model(id string) (protocol.Model, bool) {
	for _, m := range f.Models {
		if m.ModelID == id {
			return m, true
		}
	}
	return protocol.Model{}, false
}

func response(req protocol.Request, data any) protocol.Response {
	raw, _ := json.Marshal(data)
	messageType := strings.TrimSuffix(req.MessageType, "Request") + "Response"
	return protocol.Response{
		APIName:     protocol.APIName,
		APIVersion:  protocol.APIVersion,
		RequestID:   req.RequestID,
		MessageType: messageType,
		Data:        raw,
	}
}

func errorResponse(req protocol.Request, id int, message string) protocol.Response {
	raw, _ := json.Marshal(protocol.ErrorData{ErrorID: id, Message: message})
	return protocol.Response{
		APIName:     protocol.APIName,
		APIVersion:  protocol.APIVersion,
		RequestID:   req.RequestID,
		MessageType: protocol.TypeAPIError,
		Data:        raw,
	}
}
