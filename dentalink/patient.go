package dentalink

import (
	"context"
	"strings"
	"sync"
)

// PatientFeed wraps one Client on a patient-scoped endpoint, narrowing
// the stream to that patient's appointment and alert events.
type PatientFeed struct {
	client    *Client
	patientID string

	mu            sync.Mutex
	appointments  []AppointmentCreatedEvent
	alerts        []NotificationAlertEvent
	onAppointment func(AppointmentCreatedEvent)
	onAlert       func(NotificationAlertEvent)
}

// NewPatientFeed builds the feed. cfg.URL must be the platform base URL;
// the patient path is appended.
func NewPatientFeed(cfg Config, patientID string) *PatientFeed {
	cfg.URL = strings.TrimRight(cfg.URL, "/") + "/ws/patients/" + patientID + "/notifications"
	f := &PatientFeed{
		client:    NewClient(cfg),
		patientID: patientID,
	}
	f.client.OnAppointmentCreated(f.handleAppointment)
	f.client.OnNotificationAlert(f.handleAlert)
	return f
}

// Client exposes the underlying connection.
func (f *PatientFeed) Client() *Client { return f.client }

// OnAppointment registers a callback for appointment events.
func (f *PatientFeed) OnAppointment(fn func(AppointmentCreatedEvent)) { f.onAppointment = fn }

// OnAlert registers a callback for alert events.
func (f *PatientFeed) OnAlert(fn func(NotificationAlertEvent)) { f.onAlert = fn }

// Connect opens the feed connection.
func (f *PatientFeed) Connect(ctx context.Context) error {
	return f.client.Connect(ctx)
}

// Close releases the connection.
func (f *PatientFeed) Close() error { return f.client.Close() }

// Appointments returns the appointment events seen this session.
func (f *PatientFeed) Appointments() []AppointmentCreatedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AppointmentCreatedEvent(nil), f.appointments...)
}

// Alerts returns the alert events seen this session.
func (f *PatientFeed) Alerts() []NotificationAlertEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NotificationAlertEvent(nil), f.alerts...)
}

func (f *PatientFeed) handleAppointment(ev AppointmentCreatedEvent) {
	if ev.PatientID != "" && ev.PatientID != f.patientID {
		return
	}
	f.mu.Lock()
	f.appointments = append(f.appointments, ev)
	cb := f.onAppointment
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (f *PatientFeed) handleAlert(ev NotificationAlertEvent) {
	if ev.PatientID != "" && ev.PatientID != f.patientID {
		return
	}
	f.mu.Lock()
	f.alerts = append(f.alerts, ev)
	cb := f.onAlert
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}
