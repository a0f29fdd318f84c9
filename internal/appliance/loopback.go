package appliance

// StartLoopback consumes broker change requests and network notifications
// in place of a broker transport: requested endpoints are applied and
// persisted directly.
func (a *Appliance) StartLoopback() {
	a.wg.Add(1)
	go a.runLoopback()
	a.logger.Info("broker transport disabled, using loopback")
}

func (a *Appliance) runLoopback() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case b := <-a.brokerSet:
			a.ConfirmBroker(b)
		case ns := <-a.netNotify:
			a.logger.Debug("network change pending", "setting", ns.String())
		}
	}
}
