package cli

import (
	"strings"

	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/ui"
)

// modelSetter is the slice of the LLM client the session commands need.
type modelSetter interface {
	SetModel(string)
}

// session holds the mutable settings behind the interactive prompt. The
// "model" and "auto-accept" commands change them in place and persist the
// result to kestrel.toml so the change outlives the session.
type session struct {
	cfg     *config.Config
	client  modelSetter
	console *ui.Console
	cfgPath string
}

// handleCommand intercepts session commands. It returns true when the line
// was a command, whether or not it succeeded; any other line is a request
// for the runner.
func (s *session) handleCommand(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "model":
		if len(fields) != 2 {
			s.console.Error("usage: model <name>")
			return true
		}
		s.cfg.Model = fields[1]
		s.client.SetModel(fields[1])
		s.persist()
		s.console.Info("model set to " + fields[1])
		return true

	case "auto-accept":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			s.console.Error("usage: auto-accept on|off")
			return true
		}
		s.cfg.AutoAccept = fields[1] == "on"
		s.console.SetAutoAccept(s.cfg.AutoAccept)
		s.persist()
		s.console.Info("auto-accept " + fields[1])
		return true
	}
	return false
}

// persist writes the current configuration back to kestrel.toml. A failed
// write keeps the in-session change and warns.
func (s *session) persist() {
	if err := config.Save(s.cfg, s.cfgPath); err != nil {
		s.console.Warn("could not save " + config.ConfigFileName + ": " + err.Error())
	}
}
