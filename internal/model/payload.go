package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Expected top-level object discriminator on provider payloads.
const ObjectWhatsAppBusinessAccount = "whatsapp_business_account"

// Change field discriminators. The router dispatches over this closed set;
// anything else hits the default arm and is logged.
const (
	FieldMessages                     = "messages"
	FieldPhoneNumberQualityUpdate     = "phone_number_quality_update"
	FieldPhoneNumberNameUpdate        = "phone_number_name_update"
	FieldTemplateStatusUpdate         = "template_status_update"
	FieldMessageTemplateStatusUpdate  = "message_template_status_update"
	FieldMessageTemplateQualityUpdate = "message_template_quality_update"
	FieldAccountUpdate                = "account_update"
)

// WebhookPayload is the decoded shape of a provider webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"` // WABA ID
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the union of per-field payloads. Only the fields
// relevant to the change's discriminator are populated by the provider.
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product,omitempty"`
	Metadata         *Metadata        `json:"metadata,omitempty"`
	Statuses         []StatusEvent    `json:"statuses,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Contacts         []ContactProfile `json:"contacts,omitempty"`

	// phone_number_quality_update / account_update
	Event              string `json:"event,omitempty"`
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
	CurrentLimit       string `json:"current_limit,omitempty"`
	OldLimit           string `json:"old_limit,omitempty"`

	// phone_number_name_update
	Decision              string `json:"decision,omitempty"`
	RequestedVerifiedName string `json:"requested_verified_name,omitempty"`
	NewVerifiedName       string `json:"new_verified_name,omitempty"`
	RejectionReason       string `json:"rejection_reason,omitempty"`

	// template updates
	MessageTemplateID   json.Number `json:"message_template_id,omitempty"`
	MessageTemplateName string      `json:"message_template_name,omitempty"`
	NewQualityScore     string      `json:"new_quality_score,omitempty"`
	Reason              string      `json:"reason,omitempty"`

	// account_update
	WABAInfo *WABAInfo `json:"waba_info,omitempty"`
}

// Summary renders a short description of the payload for queue listings
// and log search. Only the first change is summarized; payloads carry one
// change in practice.
func (p WebhookPayload) Summary() string {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			switch {
			case len(change.Value.Statuses) > 0:
				st := change.Value.Statuses[0]
				return "Status update: " + st.Status + " for " + st.RecipientID
			case len(change.Value.Messages) > 0:
				msg := change.Value.Messages[0]
				return "Incoming " + msg.Type + " message from " + msg.From
			case change.Field != "":
				if change.Value.Event != "" {
					return change.Field + ": " + change.Value.Event
				}
				return change.Field
			}
		}
	}
	return "unrecognized payload"
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
	PhoneNumberID      string `json:"phone_number_id,omitempty"`
}

type WABAInfo struct {
	WABAID string `json:"waba_id"`
}

// StatusEvent is a single delivery receipt for an outbound message.
type StatusEvent struct {
	ID          string        `json:"id"` // wamid
	Status      string        `json:"status"`
	Timestamp   string        `json:"timestamp"` // unix seconds, as a string
	RecipientID string        `json:"recipient_id,omitempty"`
	Errors      []StatusError `json:"errors,omitempty"`
}

// Time converts the provider's unix-seconds string timestamp.
func (s StatusEvent) Time() time.Time {
	secs, err := strconv.ParseInt(s.Timestamp, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(secs, 0)
}

type StatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Details string `json:"details,omitempty"`
}

// String renders the error the way it is stored on ledgers:
// "Title (Code: N): details".
func (e StatusError) String() string {
	out := e.Title + " (Code: " + strconv.Itoa(e.Code) + ")"
	if e.Details != "" {
		out += ": " + e.Details
	}
	return out
}

type ContactProfile struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is a message sent by an end user to a business number.
// Content variants are a closed set; unknown types fall through to an
// empty body when stored.
type InboundMessage struct {
	From      string          `json:"from"`
	ID        string          `json:"id"` // wamid
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Text      *TextContent    `json:"text,omitempty"`
	Image     json.RawMessage `json:"image,omitempty"`
	Audio     json.RawMessage `json:"audio,omitempty"`
	Video     json.RawMessage `json:"video,omitempty"`
	Document  json.RawMessage `json:"document,omitempty"`
	Sticker   json.RawMessage `json:"sticker,omitempty"`
	Location  json.RawMessage `json:"location,omitempty"`
	Reaction  json.RawMessage `json:"reaction,omitempty"`
	Button    json.RawMessage `json:"button,omitempty"`
	Inter     json.RawMessage `json:"interactive,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

// Time converts the provider's unix-seconds string timestamp.
func (m InboundMessage) Time() time.Time {
	secs, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(secs, 0)
}

// Content returns the typed body keyed by message type, or an empty
// placeholder for types outside the known set.
func (m InboundMessage) Content() json.RawMessage {
	var body json.RawMessage
	switch m.Type {
	case "text":
		if m.Text != nil {
			body, _ = json.Marshal(m.Text)
		}
	case "image":
		body = m.Image
	case "audio":
		body = m.Audio
	case "video":
		body = m.Video
	case "document":
		body = m.Document
	case "sticker":
		body = m.Sticker
	case "location":
		body = m.Location
	case "reaction":
		body = m.Reaction
	case "button":
		body = m.Button
	case "interactive":
		body = m.Inter
	}
	if body == nil {
		body = json.RawMessage(`{}`)
	}
	wrapped, _ := json.Marshal(map[string]json.RawMessage{m.Type: body})
	return wrapped
}

// Preview renders a short human-readable summary of the message, used for
// chat denormalization and queue log summaries.
func (m InboundMessage) Preview() string {
	if m.Type == "text" && m.Text != nil {
		return m.Text.Body
	}
	return "[" + m.Type + "]"
}
