package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/internal/suggest"
	"github.com/MrWong99/earsense/pkg/audio"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// Codec names accepted by the codec query parameter.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// pipeDepth is the number of audio messages buffered between the socket and
// the session.
const pipeDepth = 32

// Message types sent to and received from stream clients.
const (
	MsgSession = "session"
	MsgEvent   = "event"
	MsgEnd     = "end"
)

// Message is one JSON text message on the stream socket.
//
// The server sends "session" once after the upgrade, then one "event" per
// detection and a final "end", carrying the fatal session error if any. The
// client sends "end" when it has no more audio; the server then drains the
// pending events and closes the socket.
type Message struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Event     *detect.Event `json:"event,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// streamParams are the parsed query parameters of /v1/stream.
type streamParams struct {
	detector detect.Kind
	profile  string
	codec    string
	format   audio.Format
}

func (s *Server) parseStreamParams(r *http.Request) (streamParams, error) {
	q := r.URL.Query()
	p := streamParams{
		detector: detect.Kind(q.Get("detector")),
		profile:  q.Get("profile"),
		codec:    q.Get("codec"),
	}
	if !p.detector.IsValid() {
		known := make([]string, len(detect.Kinds))
		for i, k := range detect.Kinds {
			known[i] = string(k)
		}
		return p, suggest.New().Unknown("detector", string(p.detector), known)
	}
	if p.detector != detect.Step {
		if err := trainstore.ValidateName(p.profile); err != nil {
			return p, fmt.Errorf("profile: %w", err)
		}
	}

	switch p.codec {
	case "", CodecPCM:
		p.codec = CodecPCM
		p.format = audio.Format{SampleRate: s.cfg.SampleRate, Channels: 1}
		if v := q.Get("rate"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return p, fmt.Errorf("invalid rate %q", v)
			}
			p.format.SampleRate = n
		}
		if v := q.Get("channels"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 8 {
				return p, fmt.Errorf("invalid channels %q", v)
			}
			p.format.Channels = n
		}
	case CodecOpus:
		p.format = audio.OpusFormat
	default:
		return p, fmt.Errorf("unknown codec %q", p.codec)
	}
	return p, nil
}

// handleStream upgrades to a websocket and runs one session fed by the
// client's audio.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	p, err := s.parseStreamParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var dec *audio.OpusDecoder
	if p.codec == CodecOpus {
		if dec, err = audio.NewOpusDecoder(); err != nil {
			log.Error("create opus decoder", "error", err)
			writeError(w, http.StatusInternalServerError, "opus unavailable")
			return
		}
	}

	ctx := r.Context()
	pipe := audio.NewPipe(p.format, pipeDepth)
	st, err := s.cfg.Sessions.Open(ctx, OpenRequest{
		Profile:    p.profile,
		Detector:   p.detector,
		Device:     pipe,
		DeviceName: "ws:" + r.RemoteAddr,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrBusy) {
			status = http.StatusServiceUnavailable
		}
		log.Warn("open stream session", "detector", p.detector, "profile", p.profile, "error", err)
		writeError(w, status, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.OriginPatterns,
	})
	if err != nil {
		st.Stop()
		log.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, Message{Type: MsgSession, SessionID: st.ID()}); err != nil {
		st.Stop()
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		err := readAudio(ctx, conn, pipe, dec)
		if err != nil {
			st.Stop()
		}
		return err
	})
	g.Go(func() error {
		defer conn.Close(websocket.StatusNormalClosure, "")
		return writeEvents(ctx, conn, st)
	})
	if err := g.Wait(); err != nil && !isClosed(err) {
		log.Debug("stream ended", "session_id", st.ID(), "error", err)
	}
}

// readAudio feeds binary messages into pipe until the client sends "end".
func readAudio(ctx context.Context, conn *websocket.Conn, pipe *audio.Pipe, dec *audio.OpusDecoder) error {
	defer pipe.CloseWrite()
	var buf []int16
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageText {
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("server: bad control message: %w", err)
			}
			if msg.Type == MsgEnd {
				return nil
			}
			continue
		}

		var samples []int16
		if dec != nil {
			if samples, err = dec.Decode(data); err != nil {
				return err
			}
		} else {
			buf = audio.DecodePCM(buf[:0], data)
			samples = buf
		}
		if len(samples) == 0 {
			continue
		}
		if err := pipe.Write(ctx, samples); err != nil {
			return err
		}
	}
}

// writeEvents forwards session events until the session ends, then reports
// how it ended.
func writeEvents(ctx context.Context, conn *websocket.Conn, st Stream) error {
	for ev := range st.Events() {
		if err := wsjson.Write(ctx, conn, Message{Type: MsgEvent, Event: &ev}); err != nil {
			st.Stop()
			for range st.Events() {
			}
			return err
		}
	}
	end := Message{Type: MsgEnd, SessionID: st.ID()}
	if err := st.Wait(ctx); err != nil {
		end.Error = err.Error()
	}
	return wsjson.Write(ctx, conn, end)
}

func isClosed(err error) bool {
	s := websocket.CloseStatus(err)
	return s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway ||
		errors.Is(err, context.Canceled)
}
