package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrDecode matches every *DecodeError via errors.Is.
var ErrDecode = errors.New("decode inbound message")

// DecodeError reports an inbound message that cannot be processed.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode inbound message: %s: %v", e.Reason, e.Err)
	}
	return "decode inbound message: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// MaxAmount is the largest amount a NUMERIC(10,2) column holds. Every store
// backend accepts exactly the amounts up to it.
const MaxAmount = 99999999.99

// Request is the inbound payment message.
type Request struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	DeviceID string  `json:"device_id,omitempty"`
}

// Response is published on the outbound topic once a verdict is reached.
type Response struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

type wireRequest struct {
	ID       *string  `json:"id"`
	Amount   *float64 `json:"amount"`
	DeviceID *string  `json:"device_id"`
}

// DecodeRequest parses an inbound payload. The amount is normalized to cents
// and a missing device_id becomes UnknownDevice.
func DecodeRequest(payload []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(payload, &w); err != nil {
		return Request{}, &DecodeError{Reason: "malformed json", Err: err}
	}
	if w.ID == nil || *w.ID == "" {
		return Request{}, &DecodeError{Reason: "missing id"}
	}
	if w.Amount == nil {
		return Request{}, &DecodeError{Reason: "missing amount"}
	}
	if *w.Amount < 0 {
		return Request{}, &DecodeError{Reason: fmt.Sprintf("negative amount %v", *w.Amount)}
	}
	if math.IsNaN(*w.Amount) || math.IsInf(*w.Amount, 0) || RoundCents(*w.Amount) > MaxAmount {
		return Request{}, &DecodeError{Reason: fmt.Sprintf("amount %v exceeds %.2f", *w.Amount, MaxAmount)}
	}

	req := Request{
		ID:       *w.ID,
		Amount:   RoundCents(*w.Amount),
		DeviceID: UnknownDevice,
	}
	if w.DeviceID != nil && *w.DeviceID != "" {
		req.DeviceID = *w.DeviceID
	}
	return req, nil
}

// RoundCents rounds an amount to two fractional digits.
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

func EncodeResponse(resp Response) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return b, nil
}

// DecodeResponse parses an outbound verdict message.
func DecodeResponse(payload []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, &DecodeError{Reason: "malformed json", Err: err}
	}
	if resp.ID == "" || !resp.Status.Terminal() {
		return Response{}, &DecodeError{Reason: fmt.Sprintf("invalid response %q/%q", resp.ID, resp.Status)}
	}
	return resp, nil
}

func EncodeRequest(req Request) ([]byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return b, nil
}
