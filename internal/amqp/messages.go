package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// DatasetLoadedMessage announces that the registration table behind a source
// changed and cached reports built from it are stale.
type DatasetLoadedMessage struct {
	Source    string    `json:"source"`
	ImportID  int64     `json:"import_id,omitempty"`
	Rows      int       `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDatasetLoadedMessage(source string, importID int64, rows int) *DatasetLoadedMessage {
	return &DatasetLoadedMessage{
		Source:    source,
		ImportID:  importID,
		Rows:      rows,
		Timestamp: time.Now().UTC(),
	}
}

func (m *DatasetLoadedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DatasetLoadedMessageFromJSON(data []byte) (*DatasetLoadedMessage, error) {
	var msg DatasetLoadedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Source == "" {
		return nil, errors.New("dataset loaded message without source")
	}
	return &msg, nil
}
