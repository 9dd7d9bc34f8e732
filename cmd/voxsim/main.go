// voxsim is a mock speech-activity event source for exercising voiceduck
// without a real voice bot. It serves the ducking wire protocol over
// websocket: it validates the ?token= query parameter (closing with the
// reserved 4001 status on mismatch), emits DUCK/UNDUCK from a randomized
// speech script, sends periodic PINGs, and logs PONG replies.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const authRejectedCloseCode = 4001

type wireMessage struct {
	Type         string `json:"type"`
	SpeakerCount int    `json:"speakerCount,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func main() {
	var (
		addr         = flag.String("addr", ":7777", "Listen address")
		token        = flag.String("token", "secret", "Required auth token")
		pingInterval = flag.Duration("ping-interval", 30*time.Second, "PING cadence")
		minSilence   = flag.Duration("min-silence", 2*time.Second, "Shortest silence between speech bursts")
		maxSilence   = flag.Duration("max-silence", 8*time.Second, "Longest silence between speech bursts")
		minTalk      = flag.Duration("min-talk", 1*time.Second, "Shortest speech burst")
		maxTalk      = flag.Duration("max-talk", 5*time.Second, "Longest speech burst")
	)
	flag.Parse()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveSession(w, r, *token, *pingInterval, speechScript{
			minSilence: *minSilence,
			maxSilence: *maxSilence,
			minTalk:    *minTalk,
			maxTalk:    *maxTalk,
		})
	})

	log.Printf("voxsim listening on %s (token %q)", *addr, *token)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

type speechScript struct {
	minSilence, maxSilence time.Duration
	minTalk, maxTalk       time.Duration
}

func (s speechScript) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

func serveSession(w http.ResponseWriter, r *http.Request, token string, pingInterval time.Duration, script speechScript) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The token rides the query string; a mismatch gets the reserved
	// auth-rejected close so clients know not to retry.
	if r.URL.Query().Get("token") != token {
		log.Printf("rejecting %s: bad token", r.RemoteAddr)
		msg := websocket.FormatCloseMessage(authRejectedCloseCode, "authentication rejected")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}

	log.Printf("client connected: %s", r.RemoteAddr)

	var writeMu sync.Mutex
	send := func(msg wireMessage) error {
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	done := make(chan struct{})

	// Read loop: the only inbound traffic is PONG.
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("client gone: %s (%v)", r.RemoteAddr, err)
				return
			}
			var msg wireMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("unparseable frame from %s: %s", r.RemoteAddr, data)
				continue
			}
			if msg.Type == "PONG" {
				log.Printf("pong from %s", r.RemoteAddr)
			} else {
				log.Printf("unexpected %q frame from %s", msg.Type, r.RemoteAddr)
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	// Speech script: silence, then a burst of 1-3 speakers, then unduck.
	speaking := false
	next := time.NewTimer(script.between(script.minSilence, script.maxSilence))
	defer next.Stop()

	for {
		select {
		case <-done:
			return

		case <-pingTicker.C:
			if err := send(wireMessage{Type: "PING"}); err != nil {
				return
			}

		case <-next.C:
			if speaking {
				speaking = false
				log.Printf("speech ended -> UNDUCK")
				if err := send(wireMessage{Type: "UNDUCK"}); err != nil {
					return
				}
				next.Reset(script.between(script.minSilence, script.maxSilence))
			} else {
				speaking = true
				n := 1 + rand.Intn(3)
				log.Printf("speech detected (%d speakers) -> DUCK", n)
				if err := send(wireMessage{Type: "DUCK", SpeakerCount: n}); err != nil {
					return
				}
				next.Reset(script.between(script.minTalk, script.maxTalk))
			}
		}
	}
}
