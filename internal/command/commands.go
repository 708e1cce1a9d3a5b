// Package command provides the command registry, parser, and built-in command definitions.
package command

// Categories for organizing commands.
const (
	CategoryDice   = "dice"
	CategorySocial = "social"
	CategorySystem = "system"
)

// Handler identifiers mapping commands to bot handlers.
const (
	HandlerRoll  = "roll"
	HandlerMacro = "macro"
	HandlerAmI   = "ami"
	HandlerHelp  = "help"
	HandlerQuit  = "quit"
)

// Command defines a user-invocable command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage is the argument synopsis shown by help, e.g. "<dice...>".
	Usage string
	// Help is the short help text displayed to users.
	Help string
	// Category groups the command.
	Category string
	// Handler maps to the bot handler that runs the command.
	Handler string
}

// BuiltinCommands returns all built-in commands.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "roll", Aliases: []string{"r"}, Usage: "<dice...>", Help: "Roll dice, e.g. 2d6 1d20", Category: CategoryDice, Handler: HandlerRoll},
		{Name: "macro", Aliases: []string{"m"}, Usage: "[name] [args...]", Help: "Roll a named macro, or list macros", Category: CategoryDice, Handler: HandlerMacro},
		{Name: "ami", Usage: "<something>?", Help: "Ask the bot a question about yourself", Category: CategorySocial, Handler: HandlerAmI},
		{Name: "help", Aliases: []string{"?"}, Help: "List commands", Category: CategorySystem, Handler: HandlerHelp},
		{Name: "quit", Aliases: []string{"exit"}, Help: "Disconnect", Category: CategorySystem, Handler: HandlerQuit},
	}
}
