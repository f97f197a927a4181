// Package monitoring turns a simulation into a web server, so that a browser
// can watch and drive it.
package monitoring

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/sarchlab/osim/kernel"
	"github.com/sarchlab/osim/monitoring/web"
	"github.com/sarchlab/osim/sim"
)

// Monitor serves the state of a kernel over HTTP and advances its engine in
// real time.
type Monitor struct {
	kernel     *kernel.Comp
	engine     sim.Engine
	portNumber int
	timeScale  float64
	tick       time.Duration
	logger     *log.Logger

	// engineLock serializes the requests with the advancing of virtual
	// time, so that no request schedules an event behind the engine.
	engineLock sync.Mutex

	pausedLock sync.Mutex
	paused     bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor of a kernel.
func NewMonitor(k *kernel.Comp) *Monitor {
	return &Monitor{
		kernel:    k,
		engine:    k.Engine(),
		timeScale: 1,
		tick:      100 * time.Millisecond,
		logger:    log.Default(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithTimeScale sets how many virtual seconds pass in one real second.
func (m *Monitor) WithTimeScale(scale float64) *Monitor {
	if scale <= 0 {
		panic("time scale must be positive")
	}

	m.timeScale = scale

	return m
}

// WithTickInterval sets how often virtual time is advanced.
func (m *Monitor) WithTickInterval(d time.Duration) *Monitor {
	if d <= 0 {
		panic("tick interval must be positive")
	}

	m.tick = d

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(l *log.Logger) *Monitor {
	m.logger = l
	return m
}

// Router returns the handler that serves the API and the web page.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(m.serialize)

	api.HandleFunc("/now", m.now).Methods(http.MethodGet)
	api.HandleFunc("/pause", m.pauseEngine).Methods(http.MethodPost)
	api.HandleFunc("/continue", m.continueEngine).Methods(http.MethodPost)
	api.HandleFunc("/progress", m.listProgressBars).Methods(http.MethodGet)

	api.HandleFunc("/processes", m.listProcesses).Methods(http.MethodGet)
	api.HandleFunc("/process", m.createProcess).Methods(http.MethodPost)
	api.HandleFunc("/process/{pid}", m.getProcess).Methods(http.MethodGet)
	api.HandleFunc("/process/{pid}/access", m.accessMemory).
		Methods(http.MethodPost)
	api.HandleFunc("/process/{pid}/{action}", m.applyOperation).
		Methods(http.MethodPost)

	api.HandleFunc("/memory", m.memory).Methods(http.MethodGet)
	api.HandleFunc("/pagetable/{pid}", m.pageTable).Methods(http.MethodGet)
	api.HandleFunc("/memstats/{pid}", m.memoryStats).Methods(http.MethodGet)
	api.HandleFunc("/replacements", m.replacements).Methods(http.MethodGet)
	api.HandleFunc("/replacements/stats", m.replacementStats).
		Methods(http.MethodGet)
	api.HandleFunc("/clock", m.clock).Methods(http.MethodGet)
	api.HandleFunc("/swap", m.swap).Methods(http.MethodGet)
	api.HandleFunc("/disk", m.disk).Methods(http.MethodGet)

	api.HandleFunc("/mode", m.getMode).Methods(http.MethodGet)
	api.HandleFunc("/mode", m.setMode).Methods(http.MethodPost)
	api.HandleFunc("/speed", m.getSpeed).Methods(http.MethodGet)
	api.HandleFunc("/speed", m.setSpeed).Methods(http.MethodPost)
	api.HandleFunc("/reset", m.reset).Methods(http.MethodPost)

	api.HandleFunc("/field/{json}", m.listFieldValue).Methods(http.MethodGet)
	api.HandleFunc("/resource", m.listResources).Methods(http.MethodGet)

	// Profiling sleeps for a second and touches no simulation state.
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

func (m *Monitor) serialize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.engineLock.Lock()
		defer m.engineLock.Unlock()

		next.ServeHTTP(w, r)
	})
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	http.Handle("/", m.Router())

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()

	return url
}

// Pause stops the advancing of virtual time. Requests are still served.
func (m *Monitor) Pause() {
	m.pausedLock.Lock()
	m.paused = true
	m.pausedLock.Unlock()
}

// Continue resumes the advancing of virtual time.
func (m *Monitor) Continue() {
	m.pausedLock.Lock()
	m.paused = false
	m.pausedLock.Unlock()
}

// IsPaused tells if virtual time is frozen.
func (m *Monitor) IsPaused() bool {
	m.pausedLock.Lock()
	defer m.pausedLock.Unlock()

	return m.paused
}

// Advance runs the engine for d virtual seconds.
func (m *Monitor) Advance(d sim.VTimeInSec) error {
	m.engineLock.Lock()
	defer m.engineLock.Unlock()

	return m.engine.RunUntil(m.engine.CurrentTime() + d)
}

// RunRealTime advances virtual time at the time scale until the context is
// done, or until the virtual time reaches until if it is positive.
func (m *Monitor) RunRealTime(ctx context.Context, until sim.VTimeInSec) error {
	var bar *ProgressBar
	if until > 0 {
		bar = m.CreateProgressBar("Virtual Time", uint64(until*1000))
		defer m.CompleteProgressBar(bar)
	}

	step := sim.VTimeInSec(m.tick.Seconds() * m.timeScale)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if m.IsPaused() {
			continue
		}

		d := step
		now := m.engine.CurrentTime()
		if until > 0 && now+d > until {
			d = until - now
		}

		if err := m.Advance(d); err != nil {
			return err
		}

		now = m.engine.CurrentTime()
		if bar != nil {
			bar.SetFinished(uint64(now * 1000))
		}

		if until > 0 && now >= until {
			return nil
		}
	}
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.engine.CurrentTime()
	fmt.Fprintf(w, "{\"now\":%.10f,\"paused\":%t}", now, m.IsPaused())
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
