package router

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type response struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}

// JSON writes data in a success envelope.
func JSON(w http.ResponseWriter, status int, data interface{}) error {
	return writeJSON(w, status, response{Success: true, Data: data})
}

// Message writes a success envelope that carries only a message.
func Message(w http.ResponseWriter, status int, msg string) error {
	return writeJSON(w, status, response{Success: true, Message: msg})
}

// Paginated writes data in a success envelope along with its pagination.
func Paginated(w http.ResponseWriter, data interface{}, p Pagination) error {
	return writeJSON(w, http.StatusOK, response{Success: true, Data: data, Pagination: &p})
}
