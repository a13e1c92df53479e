package device

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outbound command frames understood by the controller.
const (
	CmdGetValues = "getValues"
	CmdGetConf   = "getConf"
	CmdConf      = "conf"
)

// PrimingCommands are sent, in order, as soon as a connection opens.
func PrimingCommands() []string {
	return []string{CmdGetValues, CmdGetConf}
}

// EncodeConf builds the configuration write frame: the "conf" tag immediately
// followed by the JSON object, with no delimiter.
func EncodeConf(edits map[string]string) (string, error) {
	if edits == nil {
		edits = map[string]string{}
	}
	data, err := json.Marshal(edits)
	if err != nil {
		return "", fmt.Errorf("encode conf: %w", err)
	}
	return CmdConf + string(data), nil
}

// Command is an outbound frame as seen from the controller side.
type Command struct {
	Name string
	Conf map[string]string
}

// ParseCommand decodes a frame produced by PrimingCommands or EncodeConf.
func ParseCommand(frame string) (Command, error) {
	switch frame {
	case CmdGetValues, CmdGetConf:
		return Command{Name: frame}, nil
	}
	body, ok := strings.CutPrefix(frame, CmdConf)
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", truncate(frame, 32))
	}
	conf := map[string]string{}
	if err := json.Unmarshal([]byte(body), &conf); err != nil {
		return Command{}, fmt.Errorf("parse conf: %w", err)
	}
	return Command{Name: CmdConf, Conf: conf}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
