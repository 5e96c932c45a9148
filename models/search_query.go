package models

import (
	"fmt"
	"regexp"
	"strings"
)

// emailPattern prüft nur die Form "name@domain.tld"; NCBI verlangt eine Kontaktadresse, kein verifiziertes Postfach.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)

// SearchQuery enthält die Parameter, die ein Nutzer für einen Job übermittelt.
type SearchQuery struct {
	Term  string `json:"search_term"`
	Email string `json:"email"`
	// MaxResults begrenzt die Anzahl geladener Datensätze; 0 bedeutet alle Treffer.
	MaxResults int `json:"max_results,omitempty"`
}

// ValidationError meldet ein abgelehntes Feld der Anfrage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Normalize entfernt umgebenden Leerraum aus den Freitextfeldern.
func (q SearchQuery) Normalize() SearchQuery {
	q.Term = strings.TrimSpace(q.Term)
	q.Email = strings.TrimSpace(q.Email)
	return q
}

// Validate liefert einen *ValidationError für das erste ungültige Feld.
func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.Term) == "" {
		return &ValidationError{Field: "search_term", Reason: "is required"}
	}
	email := strings.TrimSpace(q.Email)
	if email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "must look like name@domain.tld"}
	}
	if q.MaxResults < 0 {
		return &ValidationError{Field: "max_results", Reason: "must be a positive integer"}
	}
	return nil
}
