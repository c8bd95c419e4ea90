package event

import (
	"encoding/json"
	"time"
)

const (
	SpecVersion = "1.0"

	// ContentTypeJSON tags an envelope whose data is raw JSON.
	ContentTypeJSON = "application/json"
	// ContentTypeCloudEvent is the media type of a structured envelope.
	ContentTypeCloudEvent = "application/cloudevents+json"

	TypeOrderPublished = "com.orderpipeline.order.published"
)

// Envelope is the structured event published to the bus.
// Data is kept as raw JSON produced by the originating service.
type Envelope struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	SpecVersion     string          `json:"specversion"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Topic           string          `json:"topic,omitempty"`
	PubsubName      string          `json:"pubsubname,omitempty"`
	Time            time.Time       `json:"time"`
	Data            json.RawMessage `json:"data"`
}
