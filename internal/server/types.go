// File: internal/server/types.go
package server

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType names a websocket message. Clients switch on it.
type MessageType string

const (
	// Server to client.
	MsgTypeState            MessageType = "State"
	MsgTypeHighlight        MessageType = "Highlight"
	MsgTypeHighlightCleared MessageType = "HighlightCleared"
	MsgTypeAlert            MessageType = "Alert"
	MsgTypeResult           MessageType = "Result"
	MsgTypeSystemError      MessageType = "SystemError"

	// Client to server.
	MsgTypeCommand MessageType = "Command"
)

// WSMessage is the envelope of every message sent to websocket clients.
type WSMessage struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id"`
	RequestID string      `json:"request_id,omitempty"`
}

// CommandMessage is a control request sent by a websocket client.
type CommandMessage struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	Data      CommandData `json:"data"`
}

// CommandData names the control and, for "load", carries the collection.
type CommandData struct {
	Command  string `json:"command"`
	Contents string `json:"contents,omitempty"`
	Format   string `json:"format,omitempty"`
}

// Response is the JSON body of every REST reply.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// ControlResult is returned by every control operation.
type ControlResult struct {
	State   walkthrough.State    `json:"state" yaml:"state"`
	Outcome *walkthrough.Outcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}
