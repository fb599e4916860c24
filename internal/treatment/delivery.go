package treatment

import (
	"encoding/json"
	"time"
)

// Outcome classifies a multi-recipient send.
type Outcome string

const (
	OutcomeFull    Outcome = "full"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// DeliveryResult is one recipient's result.
type DeliveryResult struct {
	Recipient string
	Err       error
}

func (r DeliveryResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Recipient string `json:"recipient"`
		Delivered bool   `json:"delivered"`
		Error     string `json:"error,omitempty"`
	}{Recipient: r.Recipient, Delivered: r.Err == nil}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// DeliveryReport collects the per-recipient results of one send.
type DeliveryReport struct {
	PlanID       string           `json:"plan_id"`
	DispatchedAt time.Time        `json:"dispatched_at"`
	Results      []DeliveryResult `json:"results"`
}

func (r *DeliveryReport) Recipients() []string {
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Recipient)
	}
	return out
}

func (r *DeliveryReport) Delivered() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res.Recipient)
		}
	}
	return out
}

func (r *DeliveryReport) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Recipient)
		}
	}
	return out
}

func (r *DeliveryReport) Outcome() Outcome {
	failed := len(r.Failed())
	switch {
	case failed == 0:
		return OutcomeFull
	case failed == len(r.Results):
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// MarshalJSON adds the derived outcome.
func (r *DeliveryReport) MarshalJSON() ([]byte, error) {
	type alias DeliveryReport
	return json.Marshal(struct {
		*alias
		Outcome Outcome `json:"outcome"`
	}{alias: (*alias)(r), Outcome: r.Outcome()})
}
