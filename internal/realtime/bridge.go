package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chatserver/internal/clog"

	zmq "github.com/pebbe/zmq4"
)

const bridgeQueueSize = 256

func getFullAddress(address string) string {
	return fmt.Sprintf("tcp://%s", address)
}

// Bridge relays fanout frames between chat server instances over a zmq
// PUB/SUB pair, so a recipient connected to another instance still gets the
// live push. Frames arriving from peers are delivered to local connections
// only and never forwarded again.
//
// zmq sockets are not safe for concurrent use, so all socket I/O is funneled
// through two loops: Forward only enqueues, sendLoop is the sole writer on
// the PUB socket, and Run is the sole reader on the SUB socket. Each loop
// closes its own socket on shutdown.
type Bridge struct {
	pub *zmq.Socket
	sub *zmq.Socket

	broadcaster *Broadcaster
	logger      clog.Logger

	outbound chan []byte
	quit     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// NewBridge binds the publishing socket on bind and subscribes to each peer.
func NewBridge(bind string, peers []string, broadcaster *Broadcaster, logger clog.Logger) (*Bridge, error) {
	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("Error during the creation of the bridge PUB socket: %v", err)
	}
	if err := pub.Bind(getFullAddress(bind)); err != nil {
		pub.Close()
		return nil, fmt.Errorf("Could not bind the bridge socket on %s: %v", bind, err)
	}

	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("Error during the creation of the bridge SUB socket: %v", err)
	}
	if err := sub.SetSubscribe(""); err != nil {
		pub.Close()
		sub.Close()
		return nil, err
	}
	sub.SetRcvtimeo(500 * time.Millisecond)

	for _, peer := range peers {
		if err := sub.Connect(getFullAddress(peer)); err != nil {
			pub.Close()
			sub.Close()
			return nil, fmt.Errorf("Could not connect to peer %s: %v", peer, err)
		}
	}

	return &Bridge{
		pub:         pub,
		sub:         sub,
		broadcaster: broadcaster,
		logger:      logger,
		outbound:    make(chan []byte, bridgeQueueSize),
		quit:        make(chan struct{}),
	}, nil
}

func (br *Bridge) Logf(format string, v ...any) {
	br.logger.Logf(format, v...)
}

// Forward enqueues a frame for peers. Called from every goroutine that
// publishes, so it never touches the socket itself. Best-effort like the rest
// of fanout: a full queue drops the frame rather than blocking the pipeline.
func (br *Bridge) Forward(frame []byte) {
	select {
	case br.outbound <- frame:
	default:
		br.Logf("Bridge forward dropped a frame {outbound queue full}")
	}
}

// sendLoop drains the outbound queue onto the PUB socket and closes it on
// shutdown. The only goroutine that ever writes the socket.
func (br *Bridge) sendLoop() {
	for {
		select {
		case <-br.quit:
			br.pub.Close()
			return
		case frame := <-br.outbound:
			if _, err := br.pub.SendBytes(frame, zmq.DONTWAIT); err != nil {
				br.Logf("Bridge forward dropped a frame {%v}", err)
			}
		}
	}
}

// Run consumes frames from peers until Stop is called.
func (br *Bridge) Run() {
	br.running.Store(true)
	go br.sendLoop()

	for br.running.Load() {
		raw, err := br.sub.RecvBytes(0)
		if err != nil {
			// Receive timeout, used to re-check the running flag.
			continue
		}

		var frame relayFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			br.Logf("Bridge received a malformed frame {%v}", err)
			continue
		}
		ev, err := DecodeEvent(frame.Event)
		if err != nil {
			br.Logf("Bridge received an unknown event {%v}", err)
			continue
		}

		br.broadcaster.DeliverLocal(ev, frame.To)
	}
	br.sub.Close()
}

// Stop signals both loops; each closes its own socket once it observes the
// signal, so no socket is ever closed under a live call.
func (br *Bridge) Stop() {
	br.stopOnce.Do(func() {
		br.running.Store(false)
		close(br.quit)
	})
}
