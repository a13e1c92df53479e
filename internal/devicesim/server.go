package devicesim

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/five82/battdash/internal/device"
)

const (
	defaultBatteries   = 4
	defaultRebootDelay = 200 * time.Millisecond
	writeWait          = 5 * time.Second
	maxLogRows         = 500
)

// logHeader is the row the firmware writes at the top of every CSV log.
var logHeader = []string{"Temps", "Batterie", "Tension", "Courant", "Etat", "Ah"}

// DefaultFields matches the thresholds a freshly flashed controller reports.
func DefaultFields() map[string]string {
	return map[string]string{
		"slider1":         "10",
		"min_voltage":     "24000",
		"max_voltage":     "30000",
		"max_current":     "1",
		"reconnect_delay": "10000",
		"voltage_diff":    "1",
		"current_diff":    "1",
		"nb_switch_max":   "5",
	}
}

// Options configure a simulated controller.
type Options struct {
	Batteries    int               // zero uses 4, capped at device.MaxBatteries
	Fields       map[string]string // nil uses DefaultFields
	RebootDelay  time.Duration     // delay between the reset notice and dropping clients
	TickInterval time.Duration     // status broadcast period used by Run
	Seed         uint64
	Logger       zerolog.Logger
}

type battery struct {
	voltage    float64
	current    float64
	ampereHour float64
	on         bool
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Server is an in-process stand-in for the battery controller. It serves the
// WebSocket gateway at /ws and the firmware's plain HTTP pages.
type Server struct {
	log         zerolog.Logger
	router      *mux.Router
	upgrader    websocket.Upgrader
	rebootDelay time.Duration
	tick        time.Duration
	started     time.Time

	mu        sync.Mutex
	rng       *rand.Rand
	batteries []battery
	fields    map[string]string
	clients   map[*client]struct{}
	logRows   [][]string
	reboots   int
}

// New builds a simulator with every battery switched on.
func New(opts Options) *Server {
	n := opts.Batteries
	if n <= 0 {
		n = defaultBatteries
	}
	n = min(n, device.MaxBatteries)
	fields := opts.Fields
	if fields == nil {
		fields = DefaultFields()
	}
	rebootDelay := opts.RebootDelay
	if rebootDelay <= 0 {
		rebootDelay = defaultRebootDelay
	}

	s := &Server{
		log:         opts.Logger.With().Str("component", "devicesim").Logger(),
		rebootDelay: rebootDelay,
		tick:        opts.TickInterval,
		started:     time.Now(),
		rng:         rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		batteries:   make([]battery, n),
		fields:      maps.Clone(fields),
		clients:     make(map[*client]struct{}),
		logRows:     [][]string{logHeader},
	}
	for i := range s.batteries {
		s.batteries[i] = battery{voltage: 26 + s.rng.Float64(), current: 0.5 + s.rng.Float64()/2, on: true}
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/switch_on", s.handleSwitch(true)).Methods(http.MethodGet)
	r.HandleFunc("/switch_off", s.handleSwitch(false)).Methods(http.MethodGet)
	r.HandleFunc("/log", s.handleLog).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run advances the simulated measurements every tick, appends them to the
// log, and broadcasts a status frame to connected clients. It returns when
// ctx is cancelled and closes every client on the way out.
func (s *Server) Run(ctx context.Context) error {
	defer s.dropClients()
	if s.tick <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Step(s.tick)
			s.broadcast(s.statusFrame())
		}
	}
}

// Step advances the simulation by elapsed.
func (s *Server) Step(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hours := elapsed.Hours()
	for i := range s.batteries {
		b := &s.batteries[i]
		b.voltage += (s.rng.Float64() - 0.5) * 0.05
		if b.on {
			b.current = max(0, b.current+(s.rng.Float64()-0.5)*0.1)
			b.ampereHour += b.current * hours
		} else {
			b.current = 0
		}
		s.appendLogLocked(i)
	}
}

// Status returns the snapshot a getValues request would receive.
func (s *Server) Status() device.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Fields returns a copy of the simulated configuration.
func (s *Server) Fields() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.fields)
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Reboots returns how many configuration saves have restarted the simulator.
func (s *Server) Reboots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reboots
}

func (s *Server) statusLocked() device.StatusSnapshot {
	status := device.StatusSnapshot{
		Batteries: make([]device.BatteryStatus, len(s.batteries)),
		Switches:  make([]device.ControlSwitch, len(s.batteries)),
	}
	for i, b := range s.batteries {
		led := "red"
		if b.on {
			led = "green"
		}
		status.Batteries[i] = device.BatteryStatus{
			Index:      i,
			Voltage:    round(b.voltage, 2),
			Current:    round(b.current, 2),
			AmpereHour: round(b.ampereHour, 3),
			LedStatus:  led,
		}
		status.Switches[i] = device.ControlSwitch{Index: i}
	}
	return status
}

func (s *Server) statusFrame() string {
	data, err := json.Marshal(s.Status())
	if err != nil {
		s.log.Error().Err(err).Msg("encode status")
		return "{}"
	}
	return string(data)
}

func (s *Server) fieldsFrame() string {
	data, err := json.Marshal(s.Fields())
	if err != nil {
		s.log.Error().Err(err).Msg("encode fields")
		return "{}"
	}
	return string(data)
}

func (s *Server) appendLogLocked(i int) {
	b := s.batteries[i]
	state := "OFF"
	if b.on {
		state = "ON"
	}
	row := []string{
		strconv.FormatInt(time.Since(s.started).Milliseconds(), 10),
		strconv.Itoa(i),
		strconv.FormatFloat(b.voltage, 'f', 2, 64),
		strconv.FormatFloat(b.current, 'f', 2, 64),
		state,
		strconv.FormatFloat(b.ampereHour, 'f', 3, 64),
	}
	s.logRows = append(s.logRows, row)
	if len(s.logRows) > maxLogRows {
		// Keep the header the firmware wrote at boot.
		s.logRows = append(s.logRows[:1], s.logRows[len(s.logRows)-maxLogRows+1:]...)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		_ = conn.Close()
		s.log.Info().Str("client", c.id).Msg("client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(c, string(data))
	}
}

func (s *Server) handleFrame(c *client, frame string) {
	cmd, err := device.ParseCommand(frame)
	if err != nil {
		s.log.Warn().Err(err).Str("client", c.id).Msg("ignoring frame")
		return
	}
	s.log.Debug().Str("client", c.id).Str("command", cmd.Name).Msg("command received")

	switch cmd.Name {
	case device.CmdGetValues:
		err = c.send(s.statusFrame())
	case device.CmdGetConf:
		err = c.send(s.fieldsFrame())
	case device.CmdConf:
		s.saveConf(cmd.Conf)
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("client", c.id).Msg("reply failed")
	}
}

// saveConf merges the new values, tells every client the controller is
// restarting, and drops them once the reboot delay passes.
func (s *Server) saveConf(conf map[string]string) {
	s.mu.Lock()
	maps.Copy(s.fields, conf)
	s.reboots++
	s.mu.Unlock()

	s.log.Info().Int("fields", len(conf)).Msg("configuration saved, restarting")
	s.broadcast(device.ResetFrame)
	time.AfterFunc(s.rebootDelay, s.dropClients)
}

func (s *Server) broadcast(frame string) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(frame); err != nil {
			s.log.Debug().Err(err).Str("client", c.id).Msg("broadcast failed")
		}
	}
}

func (s *Server) dropClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (s *Server) handleSwitch(on bool) http.HandlerFunc {
	verb := "off"
	if on {
		verb = "on"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		arg := r.URL.Query().Get("battery")
		if arg == "" {
			http.Error(w, "Battery parameter missing", http.StatusBadRequest)
			return
		}
		idx, err := strconv.Atoi(arg)
		if err != nil {
			http.Error(w, "Battery parameter invalid", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		if idx < 0 || idx >= len(s.batteries) {
			s.mu.Unlock()
			http.Error(w, fmt.Sprintf("Battery %d not present", idx), http.StatusBadRequest)
			return
		}
		s.batteries[idx].on = on
		s.appendLogLocked(idx)
		s.mu.Unlock()

		s.log.Info().Int("battery", idx).Bool("on", on).Msg("switch toggled")
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "Switched %s battery %d", verb, idx)
	}
}

func round(v float64, places int) float64 {
	p := 1.0
	for range places {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}
