package models

import (
	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/persona"
)

// ChatRequest is one user message to a persona.
type ChatRequest struct {
	Query string `json:"query" validate:"required,max=4000"`

	// Debug adds every intermediate of the turn to the response.
	Debug bool `json:"debug,omitempty"`
}

// PersonaListResponse lists the personas of a collection.
type PersonaListResponse struct {
	Collection string           `json:"collection"`
	Personas   []*persona.State `json:"personas"`
	Total      int              `json:"total"`
}

// EventsResponse holds recent character events, oldest first.
type EventsResponse struct {
	Persona    string                  `json:"persona"`
	Collection string                  `json:"collection"`
	Events     []memory.CharacterEvent `json:"events"`
}

// ConversationResponse holds the conversation window, oldest first.
type ConversationResponse struct {
	Persona    string                    `json:"persona"`
	Collection string                    `json:"collection"`
	Turns      []memory.ConversationTurn `json:"turns"`
}
