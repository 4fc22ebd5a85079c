// Package protocol defines the JSON message envelope spoken by the VTube Studio public API.
package protocol

import (
	"encoding/json"
	"fmt"
)

// API identity sent in every envelope.
const (
	APIName    = "VTubeStudioPublicAPI"
	APIVersion = "1.0"
)

// Message types from plugin to remote
const (
	TypeAuthenticationToken   = "AuthenticationTokenRequest"
	TypeAuthentication        = "AuthenticationRequest"
	TypeAvailableModels       = "AvailableModelsRequest"
	TypeModelLoad             = "ModelLoadRequest"
	TypeCurrentModel          = "CurrentModelRequest"
	TypeHotkeysInCurrentModel = "HotkeysInCurrentModelRequest"
	TypeAPIState              = "APIStateRequest"
)

// TypeAPIError marks a response as an error. data.message holds the text.
const TypeAPIError = "APIError"

// TokenField is the data key that carries the session token once authenticated.
const TokenField = "authenticationToken"

// Request is the outgoing envelope.
type Request struct {
	APIName     string         `json:"apiName"`
	APIVersion  string         `json:"apiVersion"`
	RequestID   string         `json:"requestID"`
	MessageType string         `json:"messageType"`
	Data        map[string]any `json:"data"`
}

// Response is the incoming envelope. Data is decoded lazily by the caller.
type Response struct {
	APIName     string          `json:"apiName"`
	APIVersion  string          `json:"apiVersion"`
	Timestamp   int64           `json:"timestamp,omitempty"`
	RequestID   string          `json:"requestID"`
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// IsError reports whether the response carries the error marker.
func (r *Response) IsError() bool {
	return r.MessageType == TypeAPIError
}

// Decode unmarshals the response data into v. Empty data leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", r.MessageType, err)
	}
	return nil
}

// ErrorData is the payload of an APIError response.
type ErrorData struct {
	ErrorID int    `json:"errorID"`
	Message string `json:"message"`
}

// AuthenticationTokenData is returned for a token request.
type AuthenticationTokenData struct {
	AuthenticationToken string `json:"authenticationToken"`
}

// AuthenticationData is returned when a token is redeemed.
type AuthenticationData struct {
	Authenticated bool   `json:"authenticated"`
	Reason        string `json:"reason,omitempty"`
}

// APIStateData is returned for the lightweight state request.
type APIStateData struct {
	Active                      bool   `json:"active"`
	VTubeStudioVersion          string `json:"vTubeStudioVersion,omitempty"`
	CurrentSessionAuthenticated bool   `json:"currentSessionAuthenticated"`
}

// Model describes one loadable avatar as reported by the remote.
type Model struct {
	ModelID          string `json:"modelID"`
	ModelName        string `json:"modelName"`
	ModelLoaded      bool   `json:"modelLoaded,omitempty"`
	VTSModelName     string `json:"vtsModelName,omitempty"`
	VTSModelIconName string `json:"vtsModelIconName,omitempty"`
}

// AvailableModelsData is returned for the model list request.
type AvailableModelsData struct {
	NumberOfModels  int     `json:"numberOfModels"`
	AvailableModels []Model `json:"availableModels"`
}

// CurrentModelData describes the loaded model. ModelFileName is only set
// while a model is loaded and is a path relative to the asset root.
type CurrentModelData struct {
	ModelLoaded   bool   `json:"modelLoaded"`
	ModelID       string `json:"modelID"`
	ModelName     string `json:"modelName"`
	VTSModelName  string `json:"vtsModelName,omitempty"`
	ModelFileName string `json:"modelFileName,omitempty"`
}

// Hotkey is a triggerable action of the currently loaded model.
type Hotkey struct {
	HotkeyID    string `json:"hotkeyID"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	File        string `json:"file,omitempty"`
}

// Label is the display text for a hotkey button: its name, or its type when unnamed.
func (h Hotkey) Label() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Type
}

// HotkeysData is returned for the current-model hotkeys request.
type HotkeysData struct {
	ModelLoaded      bool     `json:"modelLoaded"`
	ModelName        string   `json:"modelName"`
	ModelID          string   `json:"modelID"`
	AvailableHotkeys []Hotkey `json:"availableHotkeys"`
}
