package klippertest

import "flexhal/protocol"

func (m *MCU) identify(v protocol.Values) error {
	offset, count := v.Uint("offset"), v.Uint("count")
	m.mu.Lock()
	dict := m.dictionary
	m.mu.Unlock()

	var chunk []byte
	if offset < uint32(len(dict)) {
		end := min(offset+count, uint32(len(dict)))
		chunk = dict[offset:end]
	}
	cmd, _ := m.catalog.Lookup("identify_response")
	m.transport.SendCommand(cmd.ID, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})
	return nil
}

func (m *MCU) getClock(protocol.Values) error {
	m.mu.Lock()
	m.clock += ClockFreq / 1000
	clock := m.clock
	m.mu.Unlock()
	m.respond("clock", int64(clock))
	return nil
}

func (m *MCU) allocateOIDs(v protocol.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.oidCount != 0 {
		return m.fail("oids already allocated")
	}
	m.oidCount = int(v.Uint("count"))
	return nil
}

// configure binds oid to pin as kind. Each oid can be assigned once.
func (m *MCU) configure(v protocol.Values, kind string) (*Pin, bool) {
	oid := uint8(v.Uint("oid"))
	if int(oid) >= m.oidCount {
		m.fail("%s: oid %d not allocated", kind, oid)
		return nil, false
	}
	if obj, ok := m.objects[oid]; ok {
		m.fail("%s: oid %d already assigned to %s", kind, oid, obj.kind)
		return nil, false
	}
	pin := v.Uint("pin")
	m.objects[oid] = &object{kind: kind, pin: pin}
	p := m.pinLocked(pin)
	p.Kind = kind
	return p, true
}

// lookup finds the pin behind oid when it has the given kind.
func (m *MCU) lookup(v protocol.Values, kind string) (*Pin, bool) {
	oid := uint8(v.Uint("oid"))
	obj, ok := m.objects[oid]
	if !ok || obj.kind != kind {
		m.fail("oid %d is not a %s", oid, kind)
		return nil, false
	}
	return m.pinLocked(obj.pin), true
}

func (m *MCU) configDigitalOut(v protocol.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.configure(v, "digital_out"); ok {
		p.Output = uint8(v.Uint("value"))
	}
	return nil
}

func (m *MCU) updateDigitalOut(v protocol.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.lookup(v, "digital_out"); ok {
		p.Output = uint8(v.Uint("value"))
	}
	return nil
}

func (m *MCU) configEndstop(v protocol.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.configure(v, "endstop"); ok {
		p.PullUp = v.Uint("pull_up") != 0
	}
	return nil
}

func (m *MCU) endstopQueryState(v protocol.Values) error {
	m.mu.Lock()
	p, ok := m.lookup(v, "endstop")
	var level int64
	if ok && ((p.InputSet && p.Input) || (!p.InputSet && p.PullUp)) {
		level = 1
	}
	clock := m.clock
	m.mu.Unlock()
	if ok {
		m.respond("endstop_state", int64(v.Uint("oid")), 0, int64(clock), level)
	}
	return nil
}

func (m *MCU) configPWMOut(v protocol.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.configure(v, "pwm_out"); ok {
		p.PWM = uint16(v.Uint("value"))
	}
	return nil
}

func (m *MCU) setPWMOut(v protocol.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.lookup(v, "pwm_out"); ok {
		p.PWM = uint16(v.Uint("value"))
	}
	return nil
}

func (m *MCU) configAnalogIn(v protocol.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configure(v, "analog_in")
	return nil
}

// queryAnalogIn reports the sum of sample_count samples at once instead of on a
// timer.
func (m *MCU) queryAnalogIn(v protocol.Values) error {
	m.mu.Lock()
	p, ok := m.lookup(v, "analog_in")
	var sum int64
	if ok {
		sum = int64(p.ADC) * int64(max(v.Uint("sample_count"), 1))
	}
	next := v.Uint("clock") + v.Uint("rest_ticks")
	m.mu.Unlock()
	if ok {
		m.respond("analog_in_state", int64(v.Uint("oid")), int64(next), sum)
	}
	return nil
}
