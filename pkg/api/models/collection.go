// Package models defines API request/response data structures.
package models

import (
	"github.com/personaforge/personaforge/pkg/retriever"
	"github.com/personaforge/personaforge/pkg/vectorindex"
)

// IndexRequest replaces the index of a collection.
type IndexRequest struct {
	// Chunks are the texts to embed, one vector each.
	Chunks []string `json:"chunks" validate:"required,min=1,dive,required"`
}

// IndexResponse reports a finished build.
type IndexResponse struct {
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
	Message    string `json:"message"`
}

// CollectionListResponse lists the indexed collections.
type CollectionListResponse struct {
	Collections []string `json:"collections"`
	Total       int      `json:"total"`
}

// CollectionResponse describes one collection index.
type CollectionResponse = vectorindex.Stats

// SearchResponse holds the nearest chunks for a query, nearest first.
type SearchResponse struct {
	Collection string             `json:"collection"`
	Query      string             `json:"query"`
	K          int                `json:"k"`
	Results    []retriever.Result `json:"results"`
}
