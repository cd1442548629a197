// Package cli parses blockdelete command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandStatus  Command = "status"
	CommandReload  Command = "reload"
	CommandStop    Command = "stop"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandStatus:  {},
	CommandReload:  {},
	CommandStop:    {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

var validModes = map[string]struct{}{"tui": {}, "desktop": {}, "log": {}}

type Parsed struct {
	Command    Command
	ConfigPath string
	// UIMode overrides ui.mode for this run when non-empty.
	UIMode   string
	ShowHelp bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--list-audio-devices":
			parsed.ShowHelp = false
			parsed.Command = CommandDevices
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--ui":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--ui requires a mode")
			}
			mode := strings.ToLower(strings.TrimSpace(args[i]))
			if _, ok := validModes[mode]; !ok {
				return Parsed{}, fmt.Errorf("--ui must be one of: tui, desktop, log (got %q)", args[i])
			}
			parsed.UIMode = mode
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	if parsed.UIMode != "" && parsed.Command != CommandRun {
		return Parsed{}, errors.New("--ui only applies to the run command")
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--ui MODE] <command>

Commands:
  run       Listen for spoken block names and clear them around the player
  status    Print the state of a running instance
  reload    Re-read the config file in a running instance
  stop      Stop a running instance
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH          Config file path (default: $XDG_CONFIG_HOME/blockdelete/config.jsonc)
  --ui MODE              Status frontend for run: tui, desktop, log
  --list-audio-devices   Same as the devices command
  -h, --help             Show help
  --version              Show version
`, binaryName)
}
