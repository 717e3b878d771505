package bus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	SubjectAlertBatch          = "alerts.batch"
	SubjectAlertSurfaced       = "alerts.surfaced"
	SubjectRemediationComplete = "remediation.completed"
	SubjectRunRequested        = "runs.requested"
)

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("adwatch"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}

// RunRequest asks the worker for an immediate detection run.
type RunRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (p *Publisher) Subscribe(subject string, handler func(RunRequest)) (*nats.Subscription, error) {
	return p.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var req RunRequest
		_ = json.Unmarshal(msg.Data, &req)
		handler(req)
	})
}

// Discard drops every event. It stands in when NATS is not configured.
type Discard struct{}

func (Discard) Publish(string, any) error { return nil }
