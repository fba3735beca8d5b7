package gpio

import (
	"fmt"
	"io"
	"sync"

	"flexhal/logger"
	"flexhal/status"
)

const logTag = "gpio"

// Option configures a controller built by NewController.
type Option func(*controller)

// WithLogger routes the hierarchy's diagnostics to log.
func WithLogger(log *logger.Logger) Option {
	return func(c *controller) { c.log = log }
}

// WithEagerPorts constructs every port and pin up front instead of on first access.
func WithEagerPorts() Option {
	return func(c *controller) { c.eager = true }
}

// NewController builds the controller/port/pin hierarchy over a binding. Ports and
// pins are created on first access and the same instance is returned for an index
// for the controller's lifetime.
func NewController(d Driver, opts ...Option) Controller {
	c := &controller{drv: d}
	for _, opt := range opts {
		opt(c)
	}
	c.ports = make([]*port, d.NumPorts())
	if c.eager {
		for i := range c.ports {
			p := c.portAt(uint32(i))
			for j := range p.pins {
				p.pinAt(uint32(j))
			}
		}
	}
	return c
}

type controller struct {
	drv   Driver
	log   *logger.Logger
	eager bool

	mu    sync.Mutex
	ports []*port
}

func (c *controller) Name() string     { return c.drv.Name() }
func (c *controller) NumPorts() uint32 { return uint32(len(c.ports)) }

func (c *controller) Port(i uint32) (Port, error) {
	if i >= c.NumPorts() {
		return nil, status.Errorf(status.NotFound, "%s: port %d (have %d)", c.drv.Name(), i, c.NumPorts())
	}
	return c.portAt(i), nil
}

func (c *controller) portAt(i uint32) *port {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.ports[i]; p != nil {
		return p
	}
	p := &port{ctrl: c, index: i}
	p.pins = make([]*pin, c.drv.NumPins(i))
	c.ports[i] = p
	c.log.Debugf(logTag, "%s: port %d created with %d pins", c.drv.Name(), i, len(p.pins))
	return p
}

// Close releases the binding if it holds resources.
func (c *controller) Close() error {
	closer, ok := c.drv.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return bindingError(err, c.drv.Name()+": close")
	}
	return nil
}

type port struct {
	ctrl  *controller
	index uint32

	mu   sync.Mutex
	pins []*pin
}

func (p *port) Index() uint32          { return p.index }
func (p *port) NumPins() uint32        { return uint32(len(p.pins)) }
func (p *port) Controller() Controller { return p.ctrl }

func (p *port) Pin(i uint32) (Pin, error) {
	if i >= p.NumPins() {
		return nil, status.Errorf(status.NotFound, "port %d: pin %d (have %d)", p.index, i, p.NumPins())
	}
	return p.pinAt(i), nil
}

func (p *port) pinAt(i uint32) *pin {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pn := p.pins[i]; pn != nil {
		return pn
	}
	pn := &pin{port: p, index: i}
	p.pins[i] = pn
	p.ctrl.log.Verbosef(logTag, "port %d: pin %d created", p.index, i)
	return pn
}

func (p *port) Pins() ([]Pin, error) {
	out := make([]Pin, 0, p.NumPins())
	for i := uint32(0); i < p.NumPins(); i++ {
		out = append(out, p.pinAt(i))
	}
	return out, nil
}

// bulkWidth is the number of pins addressable by Write and Read.
func (p *port) bulkWidth() uint32 {
	return min(p.NumPins(), 32)
}

// Write drives the output-configured pins among the low 32 from v. Other bits are ignored.
func (p *port) Write(v uint32) error {
	pd, ok := p.ctrl.drv.(PortDriver)
	if !ok {
		return status.Errorf(status.Unsupported, "%s: port %d bulk write", p.ctrl.drv.Name(), p.index)
	}
	var mask uint32
	p.mu.Lock()
	for i := uint32(0); i < p.bulkWidth(); i++ {
		if pn := p.pins[i]; pn != nil && pn.digitalOutput() {
			mask |= 1 << i
		}
	}
	p.mu.Unlock()
	if mask == 0 {
		return nil
	}
	if err := pd.WritePort(p.index, v&mask, mask); err != nil {
		return bindingError(err, fmt.Sprintf("port %d: write", p.index))
	}
	return nil
}

// Read samples the low 32 pins; bits beyond NumPins are zero.
func (p *port) Read() (uint32, error) {
	pd, ok := p.ctrl.drv.(PortDriver)
	if !ok {
		return 0, status.Errorf(status.Unsupported, "%s: port %d bulk read", p.ctrl.drv.Name(), p.index)
	}
	v, err := pd.ReadPort(p.index)
	if err != nil {
		return 0, bindingError(err, fmt.Sprintf("port %d: read", p.index))
	}
	if w := p.bulkWidth(); w < 32 {
		v &= 1<<w - 1
	}
	return v, nil
}

type pin struct {
	port  *port
	index uint32

	mu         sync.Mutex
	cfg        Config
	configured bool
	state      State
}

func (pn *pin) PortIndex() uint32 { return pn.port.index }
func (pn *pin) PinIndex() uint32  { return pn.index }
func (pn *pin) Port() Port        { return pn.port }

func (pn *pin) String() string {
	return fmt.Sprintf("port %d pin %d", pn.port.index, pn.index)
}

func (pn *pin) drv() Driver         { return pn.port.ctrl.drv }
func (pn *pin) log() *logger.Logger { return pn.port.ctrl.log }

func (pn *pin) SetMode(m Mode) error {
	c := Canonicalize(m)
	state := stateFor(c)
	if m >= ModeDisabled {
		state = StateDisabled
	}
	return pn.apply(c, state)
}

func (pn *pin) SetConfig(c Config) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%s: %w", pn, err)
	}
	return pn.apply(c, stateFor(c))
}

// apply programs c and commits it only if the binding accepted it.
func (pn *pin) apply(c Config, state State) error {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	if err := pn.drv().Configure(pn.port.index, pn.index, c); err != nil {
		pn.log().Debugf(logTag, "%s: configure %s failed: %v", pn, c, err)
		return bindingError(err, fmt.Sprintf("%s: configure %s", pn, c))
	}
	pn.cfg = c
	pn.configured = true
	pn.state = state
	pn.log().Debugf(logTag, "%s: configured %s (%s)", pn, c, state)
	return nil
}

func stateFor(c Config) State {
	switch {
	case c.Signal == SignalAnalog:
		return StateAnalog
	case c.IsOutput():
		return StateOutput
	default:
		return StateInput
	}
}

func (pn *pin) Config() (Config, bool) {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	return pn.cfg, pn.configured
}

func (pn *pin) State() State {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	return pn.state
}

func (pn *pin) digitalOutput() bool {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	return pn.canDigitalWrite()
}

func (pn *pin) canDigitalWrite() bool {
	return pn.configured && pn.state == StateOutput && pn.cfg.IsOutput() &&
		(pn.cfg.Signal == SignalPushPull || pn.cfg.Signal == SignalOpenDrain)
}

func (pn *pin) DigitalWrite(v Value) error {
	if v > High {
		return status.Errorf(status.Param, "%s: invalid level %d", pn, v)
	}
	pn.mu.Lock()
	defer pn.mu.Unlock()
	if !pn.canDigitalWrite() {
		return status.Errorf(status.Param, "%s: digital write while %s", pn, pn.describe())
	}
	if err := pn.drv().Set(pn.port.index, pn.index, v); err != nil {
		return bindingError(err, fmt.Sprintf("%s: write", pn))
	}
	pn.log().Verbosef(logTag, "%s: write %s", pn, v)
	return nil
}

func (pn *pin) DigitalRead() (Value, error) {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	readable := pn.configured && (pn.state == StateInput || pn.state == StateOutput) && pn.cfg.IsDigital()
	if !readable {
		return Low, status.Errorf(status.Param, "%s: digital read while %s", pn, pn.describe())
	}
	v, err := pn.drv().Get(pn.port.index, pn.index)
	if err != nil {
		return Low, bindingError(err, fmt.Sprintf("%s: read", pn))
	}
	return v, nil
}

func (pn *pin) AnalogWrite(v uint32) error {
	ad, ok := pn.drv().(AnalogDriver)
	if ok {
		_, ok = ad.AnalogCapable(pn.port.index, pn.index)
	}
	if !ok {
		return status.Errorf(status.Unsupported, "%s: %s has no analog output", pn, pn.drv().Name())
	}
	pn.mu.Lock()
	defer pn.mu.Unlock()
	writable := pn.configured && pn.cfg.IsOutput() &&
		(pn.cfg.Signal == SignalPWM || pn.cfg.Signal == SignalAnalog)
	if !writable {
		return status.Errorf(status.Param, "%s: analog write while %s", pn, pn.describe())
	}
	if err := ad.AnalogWrite(pn.port.index, pn.index, v); err != nil {
		return bindingError(err, fmt.Sprintf("%s: analog write", pn))
	}
	return nil
}

func (pn *pin) AnalogRead() (uint32, error) {
	ad, ok := pn.drv().(AnalogDriver)
	if ok {
		ok, _ = ad.AnalogCapable(pn.port.index, pn.index)
	}
	if !ok {
		return 0, status.Errorf(status.Unsupported, "%s: %s has no analog input", pn, pn.drv().Name())
	}
	pn.mu.Lock()
	defer pn.mu.Unlock()
	if !pn.configured || pn.cfg.Signal != SignalAnalog || pn.cfg.Direction != DirInput {
		return 0, status.Errorf(status.Param, "%s: analog read while %s", pn, pn.describe())
	}
	v, err := ad.AnalogRead(pn.port.index, pn.index)
	if err != nil {
		return 0, bindingError(err, fmt.Sprintf("%s: analog read", pn))
	}
	return v, nil
}

func (pn *pin) describe() string {
	if !pn.configured {
		return StateUnconfigured.String()
	}
	return fmt.Sprintf("%s %s", pn.state, pn.cfg)
}

// bindingError keeps a binding's status code and classifies anything else as IO.
func bindingError(err error, op string) error {
	if status.HasCode(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return status.Wrap(status.IO, err, op)
}
