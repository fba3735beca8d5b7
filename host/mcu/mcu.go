// Package mcu is the host-side client of a Klipper-protocol microcontroller. It
// retrieves the controller's dictionary and sends commands and queries by name.
package mcu

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"flexhal/host/serial"
	"flexhal/logger"
	"flexhal/protocol"
	"flexhal/status"
)

const logTag = "mcu"

// identifyChunk is the number of dictionary bytes requested per identify command.
const identifyChunk = 40

// Dictionary is the controller's self-description.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]any            `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]any `json:"enumerations,omitempty"`
}

type message struct {
	id     uint16
	name   string
	params []protocol.Param
}

// MCU is safe for concurrent use; commands and queries are serialized.
type MCU struct {
	transport *protocol.HostTransport
	log       *logger.Logger
	timeout   time.Duration

	mu             sync.Mutex
	dictionary     *Dictionary
	dictionaryData []byte
	commands       map[string]*message
	responses      map[string]*message
}

// Option configures an MCU.
type Option func(*MCU)

func WithLogger(log *logger.Logger) Option {
	return func(m *MCU) { m.log = log }
}

// WithTimeout bounds each command's ACK wait and each query's response wait.
func WithTimeout(d time.Duration) Option {
	return func(m *MCU) { m.timeout = d }
}

// New speaks the protocol over an already open link.
func New(port io.ReadWriteCloser, opts ...Option) *MCU {
	m := &MCU{timeout: protocol.DefaultTimeout}
	for _, opt := range opts {
		opt(m)
	}
	m.transport = protocol.NewHostTransport(port, m.log)
	return m
}

// Dial opens a serial device and retrieves its dictionary.
func Dial(ctx context.Context, cfg *serial.Config, opts ...Option) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		_ = port.Close()
		return nil, status.Wrap(status.IO, err, "flush serial port")
	}
	m := New(port, opts...)
	if err := m.Identify(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// Close stops the transport and closes the link.
func (m *MCU) Close() error {
	return m.transport.Close()
}

// Identify downloads, inflates and indexes the dictionary.
func (m *MCU) Identify(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var raw bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := m.identifyChunk(ctx, offset)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		raw.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}
	m.log.Debugf(logTag, "dictionary retrieved: %d bytes", raw.Len())

	data, err := inflate(raw.Bytes())
	if err != nil {
		return status.Wrap(status.IO, err, "inflate dictionary")
	}
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return status.Wrap(status.IO, err, "parse dictionary")
	}
	if err := m.index(dict); err != nil {
		return err
	}
	m.dictionary = dict
	m.dictionaryData = data
	m.log.Infof(logTag, "identified %s: %d commands, %d responses",
		dict.Version, len(dict.Commands), len(dict.Responses))
	return nil
}

func (m *MCU) identifyChunk(ctx context.Context, offset uint32) ([]byte, error) {
	m.transport.DrainResponses()
	err := m.send(ctx, protocol.IdentifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, identifyChunk)
	})
	if err != nil {
		return nil, err
	}
	for {
		resp, err := m.receive(ctx)
		if err != nil {
			return nil, err
		}
		payload := resp.Payload
		cmdID, err := protocol.DecodeVLQUint(&payload)
		if err != nil || cmdID != protocol.IdentifyResponseID {
			continue
		}
		respOffset, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, status.Wrap(status.IO, err, "decode identify_response")
		}
		if respOffset != offset {
			continue
		}
		data, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			return nil, status.Wrap(status.IO, err, "decode identify_response")
		}
		return append([]byte(nil), data...), nil
	}
}

// inflate returns data unchanged unless it carries a zlib header.
func inflate(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x78 {
		return data, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (m *MCU) index(dict *Dictionary) error {
	build := func(sigs map[string]int) (map[string]*message, error) {
		out := make(map[string]*message, len(sigs))
		for sig, id := range sigs {
			name, format := protocol.SplitSignature(sig)
			params, err := protocol.ParseFormat(format)
			if err != nil {
				return nil, status.Wrap(status.IO, err, "dictionary entry "+name)
			}
			out[name] = &message{id: uint16(id), name: name, params: params}
		}
		return out, nil
	}
	commands, err := build(dict.Commands)
	if err != nil {
		return err
	}
	responses, err := build(dict.Responses)
	if err != nil {
		return err
	}
	m.commands = commands
	m.responses = responses
	return nil
}

// Dictionary returns the parsed dictionary, nil before Identify.
func (m *MCU) Dictionary() *Dictionary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionary
}

// DictionaryRaw returns the inflated dictionary JSON.
func (m *MCU) DictionaryRaw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionaryData
}

// HasCommand reports whether the controller implements the named command.
func (m *MCU) HasCommand(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.commands[name]
	return ok
}

// Constant returns a numeric dictionary constant such as CLOCK_FREQ.
func (m *MCU) Constant(name string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dictionary == nil {
		return 0, false
	}
	v, ok := m.dictionary.Config[name].(float64)
	return v, ok
}

func (m *MCU) lookup(name string) (*message, error) {
	if m.dictionary == nil {
		return nil, status.Errorf(status.Error, "dictionary not loaded")
	}
	cmd, ok := m.commands[name]
	if !ok {
		return nil, status.Errorf(status.Unsupported, "controller has no %s command", name)
	}
	return cmd, nil
}

// Send encodes integer arguments in the command's declared order and waits for
// the ACK.
func (m *MCU) Send(ctx context.Context, name string, args ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd, err := m.lookup(name)
	if err != nil {
		return err
	}
	return m.sendArgs(ctx, cmd, args)
}

func (m *MCU) sendArgs(ctx context.Context, cmd *message, args []int64) error {
	scratch := protocol.NewScratchOutput()
	if err := protocol.EncodeArgs(scratch, cmd.params, args); err != nil {
		return status.Wrap(status.Param, err, cmd.name)
	}
	encoded := scratch.Result()
	err := m.send(ctx, cmd.id, func(output protocol.OutputBuffer) {
		output.Output(encoded)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.name, err)
	}
	m.log.Verbosef(logTag, "%s %v", cmd.name, args)
	return nil
}

// Query sends a command and waits for the named response for which match
// returns true. A nil match accepts the first response with that name.
func (m *MCU) Query(ctx context.Context, name string, args []int64, response string, match func(protocol.Values) bool) (protocol.Values, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	resp, ok := m.responses[response]
	if !ok {
		return nil, status.Errorf(status.Unsupported, "controller has no %s response", response)
	}

	m.transport.DrainResponses()
	if err := m.sendArgs(ctx, cmd, args); err != nil {
		return nil, err
	}
	for {
		msg, err := m.receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", response, err)
		}
		payload := msg.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil || uint16(id) != resp.id {
			continue
		}
		values, err := protocol.DecodeArgs(resp.params, &payload)
		if err != nil {
			return nil, status.Wrap(status.IO, err, "decode "+response)
		}
		if match == nil || match(values) {
			return values, nil
		}
	}
}

func (m *MCU) send(ctx context.Context, cmdID uint16, args func(protocol.OutputBuffer)) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.transport.SendCommandContext(ctx, cmdID, args)
}

func (m *MCU) receive(ctx context.Context) (*protocol.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.transport.ReceiveContext(ctx)
}

// PrintDictionary writes a summary of the dictionary to w.
func (m *MCU) PrintDictionary(w io.Writer) {
	dict := m.Dictionary()
	if dict == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}
	fmt.Fprintf(w, "Version: %s\n", dict.Version)
	fmt.Fprintf(w, "Build:   %s\n", dict.BuildVersions)

	keys := make([]string, 0, len(dict.Config))
	for k := range dict.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "Config:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %v\n", k, dict.Config[k])
	}

	printSigs := func(title string, sigs map[string]int) {
		byID := make([]string, 0, len(sigs))
		for sig := range sigs {
			byID = append(byID, sig)
		}
		sort.Slice(byID, func(i, j int) bool { return sigs[byID[i]] < sigs[byID[j]] })
		fmt.Fprintf(w, "%s (%d):\n", title, len(sigs))
		for _, sig := range byID {
			fmt.Fprintf(w, "  [%d] %s\n", sigs[sig], sig)
		}
	}
	printSigs("Commands", dict.Commands)
	printSigs("Responses", dict.Responses)
}
