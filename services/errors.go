package services

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound bedeutet: unbekannte ID, abgelaufen oder nie angelegt.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotReady wird geliefert, wenn ein Artefakt vor Abschluss des Jobs angefragt wird.
	ErrNotReady = errors.New("job has not completed")
	// ErrJobFinished verhindert Änderungen an Jobs im Endzustand.
	ErrJobFinished = errors.New("job already finished")
	// ErrShuttingDown lehnt neue Jobs ab, sobald Shutdown begonnen hat.
	ErrShuttingDown = errors.New("loader is shutting down")
)

// RemoteServiceError umhüllt einen Fehler der Literaturdatenbank nach allen Wiederholungen.
type RemoteServiceError struct {
	Op  string
	Err error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// ExportError bedeutet, dass die Datensätze vollständig geladen, aber nicht exportiert werden konnten.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("creating archives failed: %v", e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
