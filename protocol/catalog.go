package protocol

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Handler executes a command whose ID has already been decoded. It must consume
// its arguments from data.
type Handler func(data *[]byte) error

// Command is a catalog entry. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string
	Handler Handler
}

// Signature is the dictionary key for the entry: the name followed by its format.
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// Catalog assigns IDs to commands and responses in registration order and
// dispatches decoded commands to their handlers. IDs 0 and 1 belong to
// identify_response and identify when they are registered first.
type Catalog struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
}

func NewCatalog() *Catalog {
	return &Catalog{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command. Registering a known name returns its existing ID.
func (c *Catalog) Register(name, format string, handler Handler) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.nameToID[name]; ok {
		return id
	}
	id := c.nextID
	c.nextID++
	c.commands[id] = &Command{ID: id, Name: name, Format: format, Handler: handler}
	c.nameToID[name] = id
	return id
}

// RegisterResponse adds a controller-to-host message.
func (c *Catalog) RegisterResponse(name, format string) uint16 {
	return c.Register(name, format, nil)
}

// Lookup finds an entry by name.
func (c *Catalog) Lookup(name string) (*Command, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.nameToID[name]
	if !ok {
		return nil, false
	}
	return c.commands[id], true
}

// Get finds an entry by ID.
func (c *Catalog) Get(id uint16) (*Command, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cmd, ok := c.commands[id]
	return cmd, ok
}

func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.commands)
}

// Dispatch runs the handler registered for cmdID.
func (c *Catalog) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := c.Get(cmdID)
	if !ok || cmd.Handler == nil {
		return fmt.Errorf("unknown command ID: %d", cmdID)
	}
	return cmd.Handler(data)
}

// Dictionary returns the command and response signature maps published to hosts.
func (c *Catalog) Dictionary() (commands, responses map[string]int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	commands = make(map[string]int)
	responses = make(map[string]int)
	for id, cmd := range c.commands {
		if cmd.Handler != nil {
			commands[cmd.Signature()] = int(id)
		} else {
			responses[cmd.Signature()] = int(id)
		}
	}
	return commands, responses
}

// String lists the catalog one signature per line in ID order.
func (c *Catalog) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int, 0, len(c.commands))
	for id := range c.commands {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(c.commands[uint16(id)].Signature())
		b.WriteByte('\n')
	}
	return b.String()
}
