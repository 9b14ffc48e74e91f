package dentalink

// Dispatcher routes decoded server messages to registered callbacks.
type Dispatcher struct {
	onMessage     func(ServerMessage)
	onChatMessage func(ChatMessageEvent)
	onRoomJoined  func(RoomJoinedEvent)
	onAppointment func(AppointmentCreatedEvent)
	onAlert       func(NotificationAlertEvent)
	onRaw         func([]byte)
	onError       func(error)
}

// SetOnMessage registers a tap fired for every decoded message, before
// the type-specific callback.
func (d *Dispatcher) SetOnMessage(fn func(ServerMessage)) { d.onMessage = fn }

func (d *Dispatcher) SetOnChatMessage(fn func(ChatMessageEvent)) { d.onChatMessage = fn }

func (d *Dispatcher) SetOnRoomJoined(fn func(RoomJoinedEvent)) { d.onRoomJoined = fn }

func (d *Dispatcher) SetOnAppointmentCreated(fn func(AppointmentCreatedEvent)) {
	d.onAppointment = fn
}

func (d *Dispatcher) SetOnNotificationAlert(fn func(NotificationAlertEvent)) { d.onAlert = fn }

// SetOnRaw registers a callback for payloads that failed to decode.
func (d *Dispatcher) SetOnRaw(fn func([]byte)) { d.onRaw = fn }

func (d *Dispatcher) SetOnError(fn func(error)) { d.onError = fn }

// Dispatch routes one decoded message. Server error envelopes surface
// through the error callback.
func (d *Dispatcher) Dispatch(msg ServerMessage) {
	if d.onMessage != nil {
		d.onMessage(msg)
	}
	switch ev := msg.(type) {
	case ChatMessageEvent:
		if d.onChatMessage != nil {
			d.onChatMessage(ev)
		}
	case RoomJoinedEvent:
		if d.onRoomJoined != nil {
			d.onRoomJoined(ev)
		}
	case AppointmentCreatedEvent:
		if d.onAppointment != nil {
			d.onAppointment(ev)
		}
	case NotificationAlertEvent:
		if d.onAlert != nil {
			d.onAlert(ev)
		}
	case ServerErrorEvent:
		d.fireError(FromServerError(ev))
	}
}

// DispatchRaw forwards an undecodable payload.
func (d *Dispatcher) DispatchRaw(data []byte) {
	if d.onRaw != nil {
		d.onRaw(append([]byte(nil), data...))
	}
}

func (d *Dispatcher) fireError(err error) {
	if d.onError != nil && err != nil {
		d.onError(err)
	}
}
