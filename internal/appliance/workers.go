package appliance

import (
	"unicode/utf8"
)

// runIngest polls the status and device-name channels without blocking.
func (a *Appliance) runIngest() {
	defer a.wg.Done()
	for a.sleep(a.cfg.PollInterval) {
		a.drainStatus()
		a.drainNames()
	}
}

// drainStatus takes at most one channel's worth of messages per tick so a
// fast producer cannot pin the worker.
func (a *Appliance) drainStatus() {
	for i := 0; i < cap(a.status); i++ {
		select {
		case msg := <-a.status:
			a.ingestStatus(msg)
		default:
			return
		}
	}
}

func (a *Appliance) ingestStatus(msg []byte) {
	if !utf8.Valid(msg) {
		a.logger.Warn("status message dropped: invalid utf-8", "len", len(msg))
		a.metrics.StatusMessage("invalid_utf8")
		return
	}
	s := string(msg)
	a.state.PushStatus(s)
	a.metrics.StatusMessage("accepted")
	a.events.Emit(Event{Type: EventStatus, Data: s})
}

func (a *Appliance) drainNames() {
	for {
		select {
		case name := <-a.names:
			a.state.SetDeviceName(name)
			a.logger.Info("device name updated", "name", name)
			a.events.Emit(Event{Type: EventDeviceName, Data: name})
		default:
			return
		}
	}
}

// runBrokerRefresh applies broker endpoints reported by the transport once per
// refresh interval. Endpoints were validated at construction.
func (a *Appliance) runBrokerRefresh() {
	defer a.wg.Done()
	for a.sleep(a.cfg.RefreshInterval) {
		select {
		case b, ok := <-a.brokerUpdates:
			if !ok {
				a.logger.Info("broker update channel closed")
				return
			}
			a.state.SetBroker(b)
			a.logger.Info("broker updated", "broker", b.String())
			a.events.Emit(Event{Type: EventBroker, Data: b})
		case <-a.done:
			return
		}
	}
}
