// Scripted element-manager endpoint for exercising the alarm stream client.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	startMarker = "<+++>"
	endMarker   = "<--->"
	resyncToken = "get all alarms"
)

var (
	severities = []string{"critical", "major", "minor", "warning"}
	causes     = []string{"link down", "laser bias out of range", "high temperature", "loss of signal"}
)

func main() {
	var (
		listen     = flag.String("listen", "127.0.0.1:4444", "Listen address")
		handshake  = flag.Duration("handshake", 10*time.Second, "Handshake cadence")
		alarmEvery = flag.Duration("alarm", 3*time.Second, "Delay between alarm changes")
		elements   = flag.Int("elements", 3, "Number of simulated network elements")
		chunk      = flag.Int("chunk", 0, "Write size in bytes, 0 sends whole frames")
		garbage    = flag.Bool("garbage", false, "Write noise between frames")
	)
	flag.Parse()

	sim := newSimulator(*elements)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	log.Printf("mae-sim listening on %s (handshake %s, alarm %s, chunk %d, garbage %t)",
		ln.Addr(), *handshake, *alarmEvery, *chunk, *garbage)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Fatalf("accept: %v", err)
		}

		log.Printf("session from %s", conn.RemoteAddr())

		go serve(conn, sim, *handshake, *alarmEvery, *chunk, *garbage)
	}
}

func serve(conn net.Conn, sim *simulator, handshakeEvery, alarmEvery time.Duration, chunk int, garbage bool) {
	defer func() { _ = conn.Close() }()

	w := newFrameWriter(conn, chunk, garbage)

	commands := make(chan struct{}, 4)
	closed := make(chan struct{})

	go readCommands(conn, commands, closed)

	if err := w.frame("handshake = " + timestamp()); err != nil {
		return
	}

	handshakeTick := time.NewTicker(handshakeEvery)
	defer handshakeTick.Stop()

	alarmTick := time.NewTicker(alarmEvery)
	defer alarmTick.Stop()

	for {
		select {
		case <-closed:
			log.Printf("session closed by %s", conn.RemoteAddr())
			return
		case <-handshakeTick.C:
			if err := w.frame("handshake = " + timestamp()); err != nil {
				return
			}
		case <-alarmTick.C:
			if err := w.frame(sim.nextChange()); err != nil {
				return
			}
		case <-commands:
			log.Printf("resync requested by %s", conn.RemoteAddr())

			if err := replay(w, sim); err != nil {
				return
			}
		}
	}
}

// readCommands watches the inbound byte stream for the resync token. The
// client sends it raw, without frame markers.
func readCommands(conn net.Conn, commands chan<- struct{}, closed chan<- struct{}) {
	defer close(closed)

	buf := make([]byte, 256)

	var pending string

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		pending += string(buf[:n])

		for strings.Contains(pending, resyncToken) {
			pending = strings.Replace(pending, resyncToken, "", 1)

			select {
			case commands <- struct{}{}:
			default:
			}
		}

		// Anything that is not the token is chatter; keep only a tail
		// so a split token still matches.
		if len(pending) > len(resyncToken) {
			pending = pending[len(pending)-len(resyncToken):]
		}
	}
}

func replay(w *frameWriter, sim *simulator) error {
	if err := w.frame("sync start"); err != nil {
		return err
	}

	active := sim.active()
	for _, payload := range active {
		if err := w.frame(payload); err != nil {
			return err
		}
	}

	log.Printf("replayed %d active alarms", len(active))

	return w.frame("sync end")
}

func timestamp() string {
	return time.Now().Format("2006-01-02T15:04:05")
}

type simAlarm struct {
	sn       string
	id       int
	severity string
	state    string
	location string
	cause    string
}

func (a *simAlarm) payload() string {
	return fmt.Sprintf("Sn = %s\nAlarmID = %d\nSeverity = %s\nState = %s\nLocation = %s\nProbableCause = %s",
		a.sn, a.id, a.severity, a.state, a.location, a.cause)
}

// simulator owns a fixed fleet of alarms and flips their states over time.
// All sessions share it, so a resync on one connection reflects changes
// streamed on another.
type simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	alarms []*simAlarm
}

func newSimulator(elements int) *simulator {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var alarms []*simAlarm

	for e := 0; e < elements; e++ {
		for id := 1; id <= 4; id++ {
			alarms = append(alarms, &simAlarm{
				sn:       fmt.Sprintf("NE-%d", 1001+e),
				id:       id,
				severity: severities[rng.Intn(len(severities))],
				state:    "cleared",
				location: fmt.Sprintf("shelf %d, slot %d", 1+e%2, id),
				cause:    causes[(e+id)%len(causes)],
			})
		}
	}

	return &simulator{rng: rng, alarms: alarms}
}

// nextChange flips one alarm and returns its frame payload.
func (s *simulator) nextChange() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.alarms[s.rng.Intn(len(s.alarms))]
	if a.state == "cleared" {
		a.state = "raised"
	} else {
		a.state = "cleared"
	}

	return a.payload()
}

// active returns payloads for the alarms currently raised.
func (s *simulator) active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string

	for _, a := range s.alarms {
		if a.state == "raised" {
			out = append(out, a.payload())
		}
	}

	return out
}

// frameWriter serializes writes from the ticker loop and resync replays.
type frameWriter struct {
	mu      sync.Mutex
	conn    net.Conn
	chunk   int
	garbage bool
	rng     *rand.Rand
}

func newFrameWriter(conn net.Conn, chunk int, garbage bool) *frameWriter {
	return &frameWriter{
		conn:    conn,
		chunk:   chunk,
		garbage: garbage,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (w *frameWriter) frame(payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := startMarker + payload + endMarker
	if w.garbage {
		data = w.noise() + data
	}

	if w.chunk <= 0 {
		_, err := w.conn.Write([]byte(data))
		return err
	}

	for len(data) > 0 {
		n := w.chunk
		if n > len(data) {
			n = len(data)
		}

		if _, err := w.conn.Write([]byte(data[:n])); err != nil {
			return err
		}

		data = data[n:]

		time.Sleep(2 * time.Millisecond)
	}

	return nil
}

// noise produces marker-free junk bytes.
func (w *frameWriter) noise() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789 "

	n := 3 + w.rng.Intn(20)
	b := make([]byte, n)

	for i := range b {
		b[i] = letters[w.rng.Intn(len(letters))]
	}

	return string(b)
}
