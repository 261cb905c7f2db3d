// Package bridge is the Ingest Facade: a thin synchronous surface that
// validates external calls and translates them into core operations
// against the queue, DLO, health monitor and CTO-Agent. It holds no
// transport concerns (that's internal/api) — grounded on the teacher's
// internal/service/api/v1/handler/base.go pattern of a handler struct
// wired with its downstream services at construction time, generalized
// from "notification services" to "bridge components".
package bridge

import (
	"fmt"
	"time"

	"github.com/cellbridge/sms-bridge/internal/cryptobox"
	"github.com/cellbridge/sms-bridge/internal/ctoagent"
	"github.com/cellbridge/sms-bridge/internal/dlo"
	"github.com/cellbridge/sms-bridge/internal/domain"
	"github.com/cellbridge/sms-bridge/internal/events"
	"github.com/cellbridge/sms-bridge/internal/health"
	"github.com/cellbridge/sms-bridge/internal/metrics"
	applog "github.com/cellbridge/sms-bridge/pkg/log"

	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	"github.com/cellbridge/sms-bridge/internal/queue"
)

const component = "bridge"

const (
	maxSMSIDLen = 128
	maxBodyLen  = 4096
)

// Facade wires the bridge's core components behind a small set of
// request/response shaped methods, one per HTTP endpoint.
type Facade struct {
	Queue   *queue.Queue
	DLO     *dlo.Office
	Health  *health.Monitor
	Agent   *ctoagent.Agent
	Box     *cryptobox.Box

	startedAt time.Time
}

// New builds a Facade from its already-constructed components and
// subscribes the event-bus topics that decouple the queue and health
// monitor from the DLO and CTO-Agent: a captured dead letter flows from
// internal/queue to the DLO purely by topic name, and a raised alert
// flows from internal/health to the CTO-Agent the same way.
func New(bus *events.Bus, q *queue.Queue, office *dlo.Office, monitor *health.Monitor, agent *ctoagent.Agent, box *cryptobox.Box) *Facade {
	bus.Subscribe(queue.TopicDLOCapture, func(payload any) {
		p, ok := payload.(queue.DLOCapturePayload)
		if !ok {
			return
		}
		office.Capture(p.Message, p.LastError)
	})
	bus.Subscribe(health.TopicAlert, func(payload any) {
		a, ok := payload.(domain.Alert)
		if !ok {
			return
		}
		agent.Handle(a)
	})

	return &Facade{Queue: q, DLO: office, Health: monitor, Agent: agent, Box: box, startedAt: time.Now()}
}

// InboundSMS is the validated request shape for POST /api/sms/inbound.
type InboundSMS struct {
	SMSID     string
	Sender    string
	Body      string // plaintext, or an edge-sealed token when Encrypted is true
	Timestamp time.Time
	NodeID    string
	Priority  int
	Encrypted bool // true if the edge node had already sealed Body itself
}

// IngestResult is what POST /api/sms/inbound returns on success.
type IngestResult struct {
	SMSID      string
	QueueDepth int
}

// IngestSMS validates req, encrypts its body, and enqueues it. Per spec
// §4.8: sms_id non-empty and <=128 chars, sender non-empty, body
// <=4096 bytes. The body limit is measured on the body as received: for
// a plaintext body that is before encryption, but for a body the edge
// already sealed (encrypted=true) it is the length of the token, which
// is not decrypted here.
func (f *Facade) IngestSMS(req InboundSMS) (IngestResult, error) {
	if req.SMSID == "" || len(req.SMSID) > maxSMSIDLen {
		metrics.RecordIngestRejection("invalid_sms_id")
		return IngestResult{}, apperrors.New(apperrors.InvalidInput, "sms_id must be non-empty and at most 128 characters")
	}
	if req.Sender == "" {
		metrics.RecordIngestRejection("invalid_sender")
		return IngestResult{}, apperrors.New(apperrors.InvalidInput, "sender must be non-empty")
	}
	if len(req.Body) > maxBodyLen {
		metrics.RecordIngestRejection("invalid_body")
		return IngestResult{}, apperrors.New(apperrors.InvalidInput, fmt.Sprintf("body exceeds %d characters", maxBodyLen))
	}

	// The edge firmware base64-encodes an already-sealed body and labels it
	// encrypted=true. Treat that encoding as opaque and accept it unchanged
	// rather than re-sealing already-ciphertext bytes; only fall back to
	// sealing it ourselves if it doesn't even have the shape of a token,
	// which means the node is misconfigured rather than genuinely sealing.
	token := req.Body
	if !req.Encrypted {
		sealed, err := f.Box.Encrypt([]byte(req.Body))
		if err != nil {
			return IngestResult{}, apperrors.Wrap(err, apperrors.Internal, "failed to encrypt message body")
		}
		token = sealed
	} else if !f.Box.LooksLikeToken(req.Body) {
		applog.WithComponentAndFields(component, applog.Fields{"sms_id": req.SMSID, "node_id": req.NodeID}).
			Warn("node reported encrypted=true but body is not a valid token; treating as plaintext")
		sealed, err := f.Box.Encrypt([]byte(req.Body))
		if err != nil {
			return IngestResult{}, apperrors.Wrap(err, apperrors.Internal, "failed to encrypt message body")
		}
		token = sealed
	}

	msg := domain.Message{
		SMSID:     req.SMSID,
		Sender:    req.Sender,
		Body:      token,
		Timestamp: req.Timestamp,
		NodeID:    req.NodeID,
		Priority:  req.Priority,
		Encrypted: req.Encrypted,
	}

	if err := f.Queue.Enqueue(msg); err != nil {
		return IngestResult{}, err
	}

	return IngestResult{SMSID: req.SMSID, QueueDepth: f.Queue.Depth()}, nil
}

// IngestTelemetry validates and ingests one telemetry sample.
func (f *Facade) IngestTelemetry(sample domain.TelemetrySample) error {
	if sample.NodeID == "" {
		return apperrors.New(apperrors.InvalidInput, "node_id must be non-empty")
	}
	f.Health.Ingest(sample)
	return nil
}

// HealthReport is the shape GET /api/health returns.
type HealthReport struct {
	Status     string
	Timestamp  time.Time
	Components map[string]string
}

// Report composes the system health view: queue running, Telegram
// connectivity, tracked node count — the components spec §6 requires.
func (f *Facade) Report(telegramConnected bool) HealthReport {
	qs := f.Queue.Snapshot()
	status := "healthy"
	components := map[string]string{
		"queue": "running",
	}
	if !qs.Running {
		status = "unhealthy"
		components["queue"] = "stopped"
	}
	if telegramConnected {
		components["telegram"] = "connected"
	} else {
		components["telegram"] = "disconnected"
	}
	components["nodes"] = fmt.Sprintf("%d tracked", len(f.Health.Snapshot()))

	return HealthReport{Status: status, Timestamp: time.Now(), Components: components}
}

// RetryDeadLetter re-queues a captured dead letter by sms_id.
func (f *Facade) RetryDeadLetter(smsID string) error {
	msg, err := f.DLO.Retry(smsID)
	if err != nil {
		return err
	}
	if err := f.Queue.Enqueue(msg); err != nil {
		// Queue refused it (e.g. at capacity) — per spec, re-insert into
		// the DLO rather than losing the record.
		f.DLO.Capture(msg, "re-enqueue after retry failed: "+err.Error())
		return err
	}
	return nil
}

// PurgeDeadLetters empties the DLO and reports how many were removed.
func (f *Facade) PurgeDeadLetters() int {
	return f.DLO.PurgeAll()
}

// ListDeadLetters returns every captured dead letter with its body
// redacted — the DLO listing endpoint never exposes ciphertext.
func (f *Facade) ListDeadLetters() []domain.DeadLetter {
	all := f.DLO.List()
	redacted := make([]domain.DeadLetter, len(all))
	for i, dl := range all {
		redacted[i] = dl.Redacted()
	}
	return redacted
}

// ListIncidents returns the most recent incidents the CTO-Agent has
// raised, newest first, bounded by limit (0 means "no limit").
func (f *Facade) ListIncidents(limit int) []domain.Incident {
	return f.Agent.Incidents(limit)
}
