package chat

import (
	"errors"
	"sync"
	"unicode/utf8"
)

var (
	ErrNameTooShort  = errors.New("chat: name too short")
	ErrNameTooLong   = errors.New("chat: name too long")
	ErrNameTaken     = errors.New("chat: name already taken")
	ErrAlreadyNamed  = errors.New("chat: client already named")
	ErrNotRegistered = errors.New("chat: client not registered")
)

// NameRules bounds display name length in runes.
type NameRules struct {
	MinLength int
	MaxLength int
}

// Client is the registry record for one live connection. While Name is empty
// the client is still choosing a name.
type Client struct {
	conn Conn
	addr string

	mu   sync.RWMutex
	name string
}

// Conn returns the client's connection.
func (c *Client) Conn() Conn { return c.conn }

// Addr returns the remote address captured at registration.
func (c *Client) Addr() string { return c.addr }

// Name returns the claimed display name, or "" while naming.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Named reports whether the client has completed naming.
func (c *Client) Named() bool {
	return c.Name() != ""
}

// label identifies the client in logs.
func (c *Client) label() string {
	if name := c.Name(); name != "" {
		return name
	}
	return c.addr
}

// Registry is the ordered set of live clients. Claimed names are unique,
// compared case-sensitively.
type Registry struct {
	mu      sync.RWMutex
	clients []*Client
	rules   NameRules
}

// NewRegistry creates an empty registry enforcing rules.
func NewRegistry(rules NameRules) *Registry {
	if rules.MinLength <= 0 {
		rules.MinLength = 2
	}
	if rules.MaxLength < rules.MinLength {
		rules.MaxLength = 20
	}
	return &Registry{rules: rules}
}

// Rules returns the name rules in effect.
func (r *Registry) Rules() NameRules {
	return r.rules
}

// Register appends an unnamed record for conn and returns it.
func (r *Registry) Register(conn Conn) *Client {
	c := &Client{conn: conn, addr: conn.RemoteAddr()}

	r.mu.Lock()
	r.clients = append(r.clients, c)
	r.mu.Unlock()

	return c
}

// TrySetName validates name and claims it for c. The uniqueness check and the
// assignment happen under the registry lock, so two clients can never claim
// the same name.
func (r *Registry) TrySetName(c *Client, name string) error {
	n := utf8.RuneCountInString(name)
	if n < r.rules.MinLength {
		return ErrNameTooShort
	}
	if n > r.rules.MaxLength {
		return ErrNameTooLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(c) < 0 {
		return ErrNotRegistered
	}
	if c.Named() {
		return ErrAlreadyNamed
	}
	for _, other := range r.clients {
		if other.Name() == name {
			return ErrNameTaken
		}
	}

	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return nil
}

// Remove drops c if present and reports whether a named client was removed.
// Removing a client twice is a no-op that returns false.
func (r *Registry) Remove(c *Client) bool {
	_, named := r.remove(c)
	return named
}

func (r *Registry) remove(c *Client) (present, named bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(c)
	if i < 0 {
		return false, false
	}
	r.clients = append(r.clients[:i], r.clients[i+1:]...)
	return true, c.Named()
}

// Contains reports whether c is still registered.
func (r *Registry) Contains(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(c) >= 0
}

// Names returns the claimed names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for _, c := range r.clients {
		if name := c.Name(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Snapshot returns the current clients in registration order.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, len(r.clients))
	copy(clients, r.clients)
	return clients
}

// Len returns the number of registered clients, named or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) indexOf(c *Client) int {
	for i, other := range r.clients {
		if other == c {
			return i
		}
	}
	return -1
}
