// Package sale produces the fake coffee shop sale records pushed to the sinks.
package sale

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire format of Record.Date, always rendered in UTC.
const DateLayout = "2006-01-02 15:04:05"

// Timestamp serializes as DateLayout in UTC.
type Timestamp time.Time

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(ts).UTC().Format(DateLayout))
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return err
	}
	*ts = Timestamp(t)
	return nil
}

// Time returns the underlying time value.
func (ts Timestamp) Time() time.Time { return time.Time(ts) }

// LineItem is one coffee of an order.
type LineItem struct {
	Coffee      string  `json:"coffee"`
	Quantity    int     `json:"quantity"`
	SalesAmount float64 `json:"salesAmount"`
}

// Record is a single generated sale. It is built once per cycle and must not
// be modified after it has been handed to the sinks.
type Record struct {
	Shop     string `json:"shop"`
	RecordID string `json:"recordId"`

	// Optional static metadata block, only filled when static data is on.
	Region   string `json:"region,omitempty"`
	Currency string `json:"currency,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Terminal string `json:"terminal,omitempty"`

	Date        Timestamp  `json:"date"`
	Customer    string     `json:"customer"`
	Location    string     `json:"location"`
	SalesAmount float64    `json:"salesAmount"`
	Order       []LineItem `json:"order"`
}

// Marshal renders the record as compact single-line JSON.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
