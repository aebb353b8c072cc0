package keyboard

func (k *Keyboard) onKeyReport(ev KeyReport) error {
	if k.sess.State == StatePasskeyInput {
		return k.feedPasskey(ev)
	}

	for _, r := range k.formulator.Formulate(ev.Raw) {
		k.submit(r)
	}
	if !k.sess.DataPending {
		return nil
	}

	switch k.sess.State {
	case StateConnected:
		if k.sess.EncryptionEnabled {
			return k.drain()
		}
	case StateSlowAdvertising:
		// Restart from directed or fast advertising once the slow advert stops.
		if k.sess.StartAdverts {
			return nil
		}
		k.sess.StartAdverts = true
		return k.stopAdvertising()
	case StateIdle:
		return k.startAdvert()
	}
	return nil
}

func (k *Keyboard) feedPasskey(ev KeyReport) error {
	value, done, ok := k.passkey.Feed(ev.Raw)
	if !done {
		return nil
	}
	if ok {
		k.log.Info("[KBD] passkey entered")
		k.sec.PasskeyInput(k.sess.Peer, value)
	} else {
		k.log.Info("[KBD] passkey incomplete, rejecting")
		k.sec.PasskeyNegative(k.sess.Peer)
	}
	return k.setState(StateConnected)
}
