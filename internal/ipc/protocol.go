// Package ipc implements the newline-delimited JSON control socket of a running daemon.
package ipc

// Control commands.
const (
	CommandStatus = "status"
	CommandReload = "reload"
	CommandStop   = "stop"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool    `json:"ok"`
	State   string  `json:"state,omitempty"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Status mirrors one status snapshot for remote readers.
type Status struct {
	Mic        string `json:"mic"`
	Rec        string `json:"rec"`
	Rcon       string `json:"rcon"`
	Player     string `json:"player"`
	Restarting bool   `json:"restarting"`
	Detail     string `json:"detail,omitempty"`
}
