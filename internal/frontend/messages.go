package frontend

import (
	"os"
	"strings"

	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/status"
)

type locale string

const (
	localeEnglish locale = "en"
	localeRussian locale = "ru"
)

type messages struct {
	machines   map[fsm.Machine]string
	states     map[fsm.State]string
	ready      string
	notReady   string
	restarting string
	help       string
	reloaded   string
}

func messagesFromEnv() messages {
	return localMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "ru") {
		return localeRussian
	}
	return localeEnglish
}

func localMessages(tag locale) messages {
	switch tag {
	case localeRussian:
		return messages{
			machines: map[fsm.Machine]string{
				fsm.MachineMic:    "Микрофон",
				fsm.MachineRec:    "Распознавание",
				fsm.MachineRcon:   "RCON",
				fsm.MachinePlayer: "Игрок",
			},
			states: map[fsm.State]string{
				fsm.MicIdle:          "ожидание",
				fsm.MicListening:     "слушает",
				fsm.MicError:         "ошибка",
				fsm.RecPartial:       "слышит фразу",
				fsm.RecFinal:         "фраза распознана",
				fsm.RconDisconnected: "отключен",
				fsm.RconConnecting:   "подключение",
				fsm.RconConnected:    "подключен",
				fsm.PlayerUnknown:    "не найден",
				fsm.PlayerLocated:    "найден",
				fsm.PlayerStale:      "позиция устарела",
			},
			ready:      "Готово к удалению блоков",
			notReady:   "Не готово",
			restarting: "Перезапуск…",
			help:       "[r] перечитать конфиг  [q] выход",
			reloaded:   "конфиг перечитан",
		}
	default:
		return messages{
			machines: map[fsm.Machine]string{
				fsm.MachineMic:    "Microphone",
				fsm.MachineRec:    "Recognition",
				fsm.MachineRcon:   "RCON",
				fsm.MachinePlayer: "Player",
			},
			states:     map[fsm.State]string{},
			ready:      "Ready to delete blocks",
			notReady:   "Not ready",
			restarting: "Restarting…",
			help:       "[r] reload config  [q] quit",
			reloaded:   "config reloaded",
		}
	}
}

// state renders one sub-state, falling back to its raw name.
func (m messages) state(s fsm.State) string {
	if text, ok := m.states[s]; ok {
		return text
	}
	return string(s)
}

// headline is the one-line summary shown in notifications and the TUI title.
func (m messages) headline(snap status.Snapshot) string {
	switch {
	case snap.Restarting:
		return m.restarting
	case snap.Ready():
		return m.ready
	default:
		return m.notReady
	}
}

var machineOrder = []fsm.Machine{fsm.MachineMic, fsm.MachineRec, fsm.MachineRcon, fsm.MachinePlayer}

// lines renders one "<machine>: <state>" line per sub-state.
func (m messages) lines(snap status.Snapshot) []string {
	out := make([]string, 0, len(machineOrder))
	for _, machine := range machineOrder {
		out = append(out, m.machines[machine]+": "+m.state(snap.State(machine)))
	}
	return out
}
