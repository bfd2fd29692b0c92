package chat

import "strings"

// ClearScreen is the ANSI full reset the client interprets as "clear".
const ClearScreen = "\x1bc"

const unknownCommandText = "Unknown command. Type /help for available commands."

// HelpText lists the built-in commands.
const HelpText = `Available commands:
/help - Show this help message
/users - List all connected users
/clear - Clear your chat window`

// CommandContext is what a command handler may look at.
type CommandContext struct {
	Registry *Registry
	Client   *Client
	Args     []string
}

// CommandFunc produces the reply sent back to the issuing client.
type CommandFunc func(cc CommandContext) Envelope

// Dispatcher routes slash-commands to handlers. Lookup is case-sensitive and
// uses only the first whitespace-delimited token.
type Dispatcher struct {
	commands map[string]CommandFunc
}

// NewDispatcher returns a dispatcher with /help, /users and /clear installed.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{commands: make(map[string]CommandFunc)}
	d.Handle("/help", helpCommand)
	d.Handle("/users", usersCommand)
	d.Handle("/clear", clearCommand)
	return d
}

// Handle installs fn under name, replacing any previous handler.
func (d *Dispatcher) Handle(name string, fn CommandFunc) {
	d.commands[name] = fn
}

// IsCommand reports whether line should be dispatched rather than relayed.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, "/")
}

// Dispatch runs the command named by the first token of line. An unknown
// token yields an Error envelope.
func (d *Dispatcher) Dispatch(line string, cc CommandContext) Envelope {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ErrorMessage(unknownCommandText)
	}

	fn, ok := d.commands[fields[0]]
	if !ok {
		return ErrorMessage(unknownCommandText)
	}
	cc.Args = fields[1:]
	return fn(cc)
}

func helpCommand(CommandContext) Envelope {
	return SystemMessage(HelpText)
}

func usersCommand(cc CommandContext) Envelope {
	return SystemMessage("Connected users: " + strings.Join(cc.Registry.Names(), ", "))
}

func clearCommand(CommandContext) Envelope {
	return SystemMessage(ClearScreen)
}
