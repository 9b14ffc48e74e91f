package dentalink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DentaMind/dentalink-sdk-go/dentalink/rest"
)

// RESTSink uploads monitor snapshots through the platform REST API.
type RESTSink struct {
	API *rest.Client
}

func (s RESTSink) UploadMetrics(ctx context.Context, clientID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return WrapError(ErrorEncode, "marshal metrics snapshot", err)
	}
	report := rest.TelemetryReport{
		Metrics:   data,
		ClientID:  clientID,
		Timestamp: time.Now().UTC(),
	}
	if err := s.API.UploadMetrics(ctx, report); err != nil {
		return WrapError(ErrorRest, "upload metrics", err)
	}
	return nil
}
