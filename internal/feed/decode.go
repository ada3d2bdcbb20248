// Package feed consumes the Postgres change feed for new comments. A
// subscriber holds a dedicated LISTEN connection, decodes notification
// envelopes into ChangeEvents, and hands them to a bounded queue; a
// supervisor restarts the subscriber after connection failures.
package feed

import (
	"encoding/json"

	"github.com/echohq/echo-agent/internal/types"
)

// rowFields are the comment columns the decoder cares about. Everything
// else in the envelope is ignored.
type rowFields struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// envelope covers the notification shapes seen on the wire. Producers
// wrap the row under "new" or "record", sometimes nested one level
// deeper under "data", and sometimes send the row fields at the top
// level with no wrapper at all.
type envelope struct {
	New    *rowFields `json:"new"`
	Record *rowFields `json:"record"`
	Data   *struct {
		New    *rowFields `json:"new"`
		Record *rowFields `json:"record"`
	} `json:"data"`
	rowFields
}

// Decode extracts a ChangeEvent from one notification payload. The
// second return is false for payloads that are not valid JSON or carry
// no comment id; such payloads are dropped, never surfaced as errors.
func Decode(payload []byte) (types.ChangeEvent, bool) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return types.ChangeEvent{}, false
	}

	row := env.row()
	if row == nil || row.ID == "" {
		return types.ChangeEvent{}, false
	}

	return types.ChangeEvent{
		ID:      row.ID,
		Content: row.Content,
		Raw:     json.RawMessage(append([]byte(nil), payload...)),
	}, true
}

// row picks the first populated envelope shape, in wrapper-first order.
func (e *envelope) row() *rowFields {
	if e.New != nil {
		return e.New
	}
	if e.Record != nil {
		return e.Record
	}
	if e.Data != nil {
		if e.Data.New != nil {
			return e.Data.New
		}
		if e.Data.Record != nil {
			return e.Data.Record
		}
	}
	if e.ID != "" {
		return &e.rowFields
	}
	return nil
}
