/*
Package notify implements the GUI Notifier (C10): an outbound event
fan-out from the core to interested UI subscribers.

The core treats Notifier as an interface only — the event types below are
the wire contract; Broker is one in-process implementation suitable for a
single master process. A remote-delivering implementation (WebSocket push,
SSE) would satisfy the same Notifier interface without the core changing.

# Ordering

Ordering within one MasterAction must be preserved (§4.10 of the
specification this package implements). Broker satisfies this with a
single dispatch goroutine: Publish enqueues onto one channel, and the
broadcast loop drains it in order, so two events published in sequence
for the same MasterActionId reach every subscriber in that sequence.
Broker makes no ordering promise across different MasterActions.

# Usage

	broker := notify.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case notify.EventMasterActionCompleted:
				p := event.Payload.(notify.MasterActionCompletedPayload)
				log.Printf("action %s: %s", event.MasterActionID, p.OverallStatus)
			}
		}
	}()

	broker.Publish(&notify.Event{
		Type:           notify.EventMasterActionStarted,
		MasterActionID: action.ID,
		Payload: notify.MasterActionStartedPayload{
			Type: action.Type, Name: action.Name, InitiatedBy: action.InitiatedBy,
		},
	})
*/
package notify
