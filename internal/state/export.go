package state

import "time"

// Export is the serialisable form of a Snapshot, used for clipboard yanks and
// the snapshot command.
type Export struct {
	Connection    string            `json:"connection" yaml:"connection"`
	RestartNotice string            `json:"restartNotice,omitempty" yaml:"restart_notice,omitempty"`
	LastUpdated   *time.Time        `json:"lastUpdated,omitempty" yaml:"last_updated,omitempty"`
	LastError     string            `json:"lastError,omitempty" yaml:"last_error,omitempty"`
	Batteries     []ExportBattery   `json:"batteries" yaml:"batteries"`
	Switches      []int             `json:"switches" yaml:"switches"`
	Fields        map[string]string `json:"fields" yaml:"fields"`
}

// ExportBattery is one battery line of an Export.
type ExportBattery struct {
	Index      int     `json:"index" yaml:"index"`
	Voltage    float64 `json:"voltage" yaml:"voltage"`
	Current    float64 `json:"current" yaml:"current"`
	AmpereHour float64 `json:"ampereHour" yaml:"ampere_hour"`
	On         bool    `json:"on" yaml:"on"`
}

// Export converts the snapshot. Only fields the controller has reported are included.
func (s Snapshot) Export() Export {
	out := Export{
		Connection:    s.Conn.String(),
		RestartNotice: s.RestartNotice,
		Batteries:     make([]ExportBattery, 0, len(s.Batteries)),
		Switches:      make([]int, 0, len(s.Switches)),
		Fields:        make(map[string]string),
	}
	if !s.LastUpdated.IsZero() {
		ts := s.LastUpdated
		out.LastUpdated = &ts
	}
	if s.LastError != nil {
		out.LastError = s.LastError.Error()
	}
	for _, b := range s.Batteries {
		out.Batteries = append(out.Batteries, ExportBattery{
			Index:      b.Index,
			Voltage:    b.Voltage,
			Current:    b.Current,
			AmpereHour: b.AmpereHour,
			On:         b.On(),
		})
	}
	for _, sw := range s.Switches {
		out.Switches = append(out.Switches, sw.Index)
	}
	for _, f := range s.Fields {
		if f.HasValue {
			out.Fields[f.ID] = f.Value
		}
	}
	return out
}
