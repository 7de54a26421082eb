package client

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/latprof/internal/latency"
	"github.com/wesleyorama2/latprof/internal/sweep"
	"github.com/wesleyorama2/latprof/internal/transport"
)

// fakeClock is a manual cycle counter at 1 GHz, so 1000 cycles are 1us.
type fakeClock struct {
	now uint64
}

func (c *fakeClock) Cycles() uint64   { return c.now }
func (c *fakeClock) FreqGHz() float64 { return 1 }

type fakeRequest struct {
	resp *transport.MsgBuffer
	cont transport.Continuation
}

// fakeRPC completes requests synchronously inside RunEventLoop, the way the
// real transport runs continuations on the ticking goroutine.
type fakeRPC struct {
	clock *fakeClock

	// respSize is the number of bytes every response carries
	respSize int

	// latencies are consumed one per completion; latencyUs is used after
	latencies []float64
	latencyUs float64

	// schedule is the number of completions per steady tick; steady after
	schedule []int
	steady   int

	createErr  error
	enqueueErr error
	lost       map[int]bool
	neverAck   bool
	onTick     func(f *fakeRPC)

	created     int
	acked       int
	ticks       int
	steadyTicks int
	started     bool

	pending        *fakeRequest
	inFlight       int
	maxInFlight    int
	overlaps       int
	resizeInFlight int
	reqSizes       []int
	targets        []int
}

func newFakeRPC(respSize int) *fakeRPC {
	return &fakeRPC{
		clock:     &fakeClock{now: 1},
		respSize:  respSize,
		latencyUs: 10,
		steady:    5,
	}
}

func (f *fakeRPC) CreateSession(uri string) (int, error) {
	if f.createErr != nil {
		return -1, f.createErr
	}
	h := f.created
	f.created++
	return h, nil
}

func (f *fakeRPC) NumSMResponses() int { return f.acked }

func (f *fakeRPC) RunEventLoop(time.Duration) {
	f.ticks++
	if !f.neverAck {
		f.acked = f.created
	}
	if f.onTick != nil {
		f.onTick(f)
	}
	if !f.started {
		return
	}

	n := f.steady
	if f.steadyTicks < len(f.schedule) {
		n = f.schedule[f.steadyTicks]
	}
	f.steadyTicks++

	for i := 0; i < n && f.pending != nil; i++ {
		f.complete()
	}
}

func (f *fakeRPC) complete() {
	p := f.pending
	f.pending = nil
	f.inFlight--

	lat := f.latencyUs
	if len(f.latencies) > 0 {
		lat, f.latencies = f.latencies[0], f.latencies[1:]
	}
	f.clock.now += uint64(lat * 1000)

	p.resp.Fill(make([]byte, f.respSize))
	p.cont()
}

func (f *fakeRPC) EnqueueRequest(sessionNum int, req, resp *transport.MsgBuffer, cont transport.Continuation) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	if f.lost[sessionNum] {
		return fmt.Errorf("%w: %d", transport.ErrSessionNotConnected, sessionNum)
	}
	if f.pending != nil {
		f.overlaps++
	}

	f.started = true
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.reqSizes = append(f.reqSizes, req.DataSize())
	f.targets = append(f.targets, sessionNum)
	f.pending = &fakeRequest{resp: resp, cont: cont}

	return nil
}

func (f *fakeRPC) AllocMsgBuffer(size int) (*transport.MsgBuffer, error) {
	if size < 0 {
		return nil, errors.New("negative size")
	}
	return transport.NewMsgBuffer(size), nil
}

func (f *fakeRPC) ResizeMsgBuffer(m *transport.MsgBuffer, size int) error {
	if f.pending != nil {
		f.resizeInFlight++
		return transport.ErrBufferInFlight
	}
	return m.Resize(size)
}

func (f *fakeRPC) Clock() transport.Clock { return f.clock }

// newTestPipeline builds a pipeline over rpc with the given sweep range and
// a reply size of 8 bytes.
func newTestPipeline(t *testing.T, rpc *fakeRPC, start, end int, log *zap.Logger) *Pipeline {
	t.Helper()

	sw, err := sweep.New(start, end)
	if err != nil {
		t.Fatalf("sweep.New() error = %v", err)
	}
	rec, err := latency.New(latency.DefaultConfig())
	if err != nil {
		t.Fatalf("latency.New() error = %v", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	p, err := NewPipeline(rpc, sw, rec, PipelineConfig{RespSize: 8, Seed: 7}, log)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}
