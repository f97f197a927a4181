package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sarchlab/osim/kernel"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/scheduler"
	"github.com/sarchlab/osim/sim"
)

var errBadRequest = errors.New("bad request")

// statusOf maps an error of the kernel to an HTTP status code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, vm.ErrProcessNotFound):
		return http.StatusNotFound
	case errors.Is(err, process.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, process.ErrInvalidArgument),
		errors.Is(err, vm.ErrInvalidPage),
		errors.Is(err, scheduler.ErrUnknownMode),
		errors.Is(err, kernel.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorRsp struct {
	Error string `json:"error"`
}

func (m *Monitor) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		m.logger.Printf("monitor: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	bytes, mErr := json.Marshal(errorRsp{Error: err.Error()})
	dieOnErr(mErr)

	_, wErr := w.Write(bytes)
	dieOnErr(wErr)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func readJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return nil
}

func pidVar(r *http.Request) (vm.PID, error) {
	s := mux.Vars(r)["pid"]

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return vm.NoPID, fmt.Errorf("%w: pid %q", errBadRequest, s)
	}

	return vm.PID(n), nil
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.kernel.Processes())
}

func (m *Monitor) getProcess(w http.ResponseWriter, r *http.Request) {
	pid, err := pidVar(r)
	if err != nil {
		m.writeError(w, err)
		return
	}

	p, err := m.kernel.Process(pid)
	if err != nil {
		m.writeError(w, err)
		return
	}

	writeJSON(w, p)
}

type createReq struct {
	Priority     int  `json:"priority"`
	NumPages     *int `json:"num_pages,omitempty"`
	InitialPages *int `json:"initial_pages,omitempty"`
}

func (m *Monitor) createProcess(w http.ResponseWriter, r *http.Request) {
	req := createReq{}
	if err := readJSON(r, &req); err != nil {
		m.writeError(w, err)
		return
	}

	cfg := m.kernel.Config()
	numPages, initialPages := cfg.DefaultNumPages, cfg.DefaultLoadedPages
	if req.NumPages != nil {
		numPages = *req.NumPages
	}
	if req.InitialPages != nil {
		initialPages = *req.InitialPages
	}

	pid, err := m.kernel.CreateWithMemory(req.Priority, numPages, initialPages)
	if err != nil {
		m.writeError(w, err)
		return
	}

	p, err := m.kernel.Process(pid)
	if err != nil {
		m.writeError(w, err)
		return
	}

	writeJSON(w, p)
}

type transitionReq struct {
	Cause string `json:"cause,omitempty"`
}

func (m *Monitor) applyOperation(w http.ResponseWriter, r *http.Request) {
	pid, err := pidVar(r)
	if err != nil {
		m.writeError(w, err)
		return
	}

	action := mux.Vars(r)["action"]
	op, ok := process.ParseOperation(action)
	if !ok {
		m.writeError(w, fmt.Errorf("%w: unknown action %q",
			errBadRequest, action))
		return
	}

	req := transitionReq{}
	if err := readJSON(r, &req); err != nil {
		m.writeError(w, err)
		return
	}
	if req.Cause == "" {
		req.Cause = process.DefaultCause
	}

	p, _, err := m.kernel.Apply(pid, op, req.Cause)
	if err != nil {
		m.writeError(w, err)
		return
	}

	writeJSON(w, p)
}

type accessReq struct {
	Address uint64 `json:"address"`
	Write   bool   `json:"write"`
}

// accessRsp flattens kernel.AccessResult, whose error does not marshal.
type accessRsp struct {
	kernel.AccessResult
	Err string `json:"Err,omitempty"`
}

func (m *Monitor) accessMemory(w http.ResponseWriter, r *http.Request) {
	pid, err := pidVar(r)
	if err != nil {
		m.writeError(w, err)
		return
	}

	req := accessReq{}
	if err := readJSON(r, &req); err != nil {
		m.writeError(w, err)
		return
	}

	var res kernel.AccessResult
	if req.Write {
		res, err = m.kernel.WriteMemory(pid, req.Address)
	} else {
		res, err = m.kernel.AccessMemory(pid, req.Address)
	}
	if err != nil {
		m.writeError(w, err)
		return
	}

	rsp := accessRsp{AccessResult: res}
	if res.Err != nil {
		rsp.Err = res.Err.Error()
	}

	writeJSON(w, rsp)
}

func (m *Monitor) memory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.kernel.MemorySnapshot())
}

func (m *Monitor) pageTable(w http.ResponseWriter, r *http.Request) {
	pid, err := pidVar(r)
	if err != nil {
		m.writeError(w, err)
		return
	}

	table := m.kernel.ProcessPageTable(pid)
	if table == nil {
		m.writeError(w, fmt.Errorf("process %s: %w", pid, vm.ErrProcessNotFound))
		return
	}

	writeJSON(w, table)
}

func (m *Monitor) memoryStats(w http.ResponseWriter, r *http.Request) {
	pid, err := pidVar(r)
	if err != nil {
		m.writeError(w, err)
		return
	}

	stats := m.kernel.ProcessMemoryStats(pid)
	if stats == nil {
		m.writeError(w, fmt.Errorf("process %s: %w", pid, vm.ErrProcessNotFound))
		return
	}

	writeJSON(w, stats)
}

func (m *Monitor) replacements(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.kernel.ReplacementHistory())
}

func (m *Monitor) replacementStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.kernel.ReplacementStats())
}

type clockRsp struct {
	State     any  `json:"state"`
	LastSteps any  `json:"last_steps"`
	Full      bool `json:"full"`
}

func (m *Monitor) clock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, clockRsp{
		State:     m.kernel.ClockState(),
		LastSteps: m.kernel.ClockSteps(),
		Full:      m.kernel.IsMemoryFull(),
	})
}

func (m *Monitor) swap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.kernel.SwapSnapshot())
}

type diskRsp struct {
	Stats      any `json:"stats"`
	Operations any `json:"operations"`
}

func (m *Monitor) disk(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, diskRsp{
		Stats:      m.kernel.DiskStats(),
		Operations: m.kernel.DiskOperations(),
	})
}

type modeMsg struct {
	Mode string `json:"mode"`
}

func (m *Monitor) getMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, modeMsg{Mode: string(m.kernel.Mode())})
}

func (m *Monitor) setMode(w http.ResponseWriter, r *http.Request) {
	req := modeMsg{}
	if err := readJSON(r, &req); err != nil {
		m.writeError(w, err)
		return
	}

	mode, err := scheduler.ParseMode(req.Mode)
	if err != nil {
		m.writeError(w, err)
		return
	}

	if err := m.kernel.SetMode(mode); err != nil {
		m.writeError(w, err)
		return
	}

	writeJSON(w, m.kernel.SchedulerState())
}

type speedMsg struct {
	Speed float64 `json:"speed"`
}

func (m *Monitor) getSpeed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, speedMsg{Speed: float64(m.kernel.Speed())})
}

func (m *Monitor) setSpeed(w http.ResponseWriter, r *http.Request) {
	req := speedMsg{}
	if err := readJSON(r, &req); err != nil {
		m.writeError(w, err)
		return
	}

	if req.Speed < 0 {
		m.writeError(w, fmt.Errorf("%w: negative speed %g",
			errBadRequest, req.Speed))
		return
	}

	m.kernel.SetSpeed(sim.VTimeInSec(req.Speed))

	writeJSON(w, m.kernel.SchedulerState())
}

func (m *Monitor) reset(w http.ResponseWriter, _ *http.Request) {
	m.kernel.Reset()
	writeJSON(w, m.kernel.SchedulerState())
}
