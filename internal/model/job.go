package model

import (
	"errors"

	"github.com/google/uuid"
)

// --- Print Jobs ---

type JobKind string

const (
	JobInvoice     JobKind = "invoice"
	JobReport      JobKind = "report"
	JobTableTicket JobKind = "tableTicket"
	JobTicket      JobKind = "ticket"
	JobTestPattern JobKind = "testPattern"
)

// PrintJob carries one payload, or two for a client/agent pair. The two halves
// of a pair are never concatenated into one transport call.
type PrintJob struct {
	ID       uuid.UUID
	Kind     JobKind
	Payloads [][]byte
}

func NewJob(kind JobKind, payloads ...[]byte) PrintJob {
	return PrintJob{ID: uuid.New(), Kind: kind, Payloads: payloads}
}

func (j PrintJob) IsPair() bool {
	return len(j.Payloads) == 2
}

// --- Outcomes ---

type Status string

const (
	StatusSuccess        Status = "success"
	StatusNotConfigured  Status = "not_configured"
	StatusTransportError Status = "transport_error"
	StatusUserCancelled  Status = "user_cancelled"
)

type Result struct {
	JobID   uuid.UUID
	Status  Status
	Backend string
	Err     error
}

func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// UserMessage is what the POS shows after a failed job.
func (r Result) UserMessage() string {
	switch r.Status {
	case StatusSuccess:
		return "Ticket imprimé."
	case StatusNotConfigured:
		return "Aucune imprimante configurée. Choisissez une imprimante dans les paramètres."
	case StatusUserCancelled:
		return "Impression annulée."
	}
	detail := "erreur inconnue"
	if r.Err != nil {
		detail = r.Err.Error()
	}
	if errors.Is(r.Err, ErrDeviceUnavailable) {
		return "Imprimante introuvable ou occupée (" + detail + "). Vérifiez la connexion USB ou configurez l'imprimante dans les paramètres."
	}
	return "Erreur d'impression: " + detail + ". Vérifiez l'imprimante dans les paramètres."
}

// --- Errors ---

var (
	ErrConfigurationMissing = errors.New("no printer configured")
	ErrDeviceUnavailable    = errors.New("printer device unavailable")
	ErrUserCancelled        = errors.New("printer selection cancelled")
	ErrHostDeclined         = errors.New("host process reported print failure")
)
