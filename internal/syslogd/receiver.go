// Package syslogd receives device log pushes over UDP, parses RFC 3164 and
// RFC 5424 frames, and fans parsed messages out on a channel. The receiver
// has no knowledge of its consumers.
package syslogd

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

// maxDatagram is the largest accepted syslog datagram.
const maxDatagram = 8192

// retentionDays is how long received events are kept on disk.
const retentionDays = 90

// Config controls the receiver, persisted at enhancement/syslog/config.json.
type Config struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// StoredEvent is the persisted form of a received message.
type StoredEvent struct {
	ReceivedAt models.Millis `json:"receivedAt"`
	Facility   int           `json:"facility"`
	Severity   int           `json:"severity"`
	Hostname   string        `json:"hostname,omitempty"`
	Topics     []string      `json:"topics,omitempty"`
	Content    string        `json:"content"`
	Source     string        `json:"source,omitempty"`
}

// Receiver is the UDP syslog listener.
type Receiver struct {
	mu      sync.Mutex
	cfg     Config
	cfgFile string
	store   *storage.DayStore[StoredEvent]
	out     chan Message
	conn    net.PacketConn
	dropped int
}

// NewReceiver loads (or writes default) config and prepares the event store.
func NewReceiver(cfgFile, eventsDir, defaultListen string) (*Receiver, error) {
	store, err := storage.NewDayStore[StoredEvent](eventsDir)
	if err != nil {
		return nil, err
	}

	cfg := Config{Enabled: defaultListen != "", Listen: defaultListen}
	if err := storage.ReadJSONFile(cfgFile, &cfg); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", cfgFile).Msg("invalid syslog config, using defaults")
		}
		if err := storage.WriteJSONFile(cfgFile, cfg); err != nil {
			return nil, err
		}
	}

	return &Receiver{
		cfg:     cfg,
		cfgFile: cfgFile,
		store:   store,
		out:     make(chan Message, 1024),
	}, nil
}

// Messages is the outbound channel of parsed messages. Closed when the
// receiver stops.
func (r *Receiver) Messages() <-chan Message {
	return r.out
}

// Start binds the socket and runs the read loop until the context is
// cancelled. Returns immediately when the receiver is disabled.
func (r *Receiver) Start(ctx context.Context) error {
	if !r.cfg.Enabled || r.cfg.Listen == "" {
		log.Info().Msg("syslog receiver disabled")
		close(r.out)
		return nil
	}

	conn, err := net.ListenPacket("udp", r.cfg.Listen)
	if err != nil {
		close(r.out)
		return models.WrapE(models.KindIO, err, "bind syslog socket %s", r.cfg.Listen)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	log.Info().Str("listen", r.cfg.Listen).Msg("syslog receiver started")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(r.out)
		r.sweepRetention()

		buf := make([]byte, maxDatagram)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				if ctx.Err() != nil || strings.Contains(err.Error(), "use of closed") {
					return
				}
				log.Warn().Err(err).Msg("syslog read error")
				continue
			}
			r.handle(strings.TrimRight(string(buf[:n]), "\r\n\x00"), addr)
		}
	}()

	return nil
}

func (r *Receiver) handle(raw string, addr net.Addr) {
	msg, err := Parse(raw)
	if err != nil {
		log.Debug().Err(err).Str("raw", truncate(raw, 120)).Msg("dropping unparseable syslog frame")
		return
	}

	source := ""
	if addr != nil {
		source = addr.String()
	}
	r.persist(msg, source)

	select {
	case r.out <- msg:
	default:
		// Consumer is behind; drop rather than block the socket loop.
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		if dropped%100 == 1 {
			log.Warn().Int("dropped", dropped).Msg("syslog consumer backlogged, dropping messages")
		}
	}
}

func (r *Receiver) persist(msg Message, source string) {
	now := models.Now()
	event := StoredEvent{
		ReceivedAt: now,
		Facility:   msg.Facility,
		Severity:   msg.Severity,
		Hostname:   msg.Hostname,
		Topics:     msg.Topics,
		Content:    msg.Content,
		Source:     source,
	}
	if err := r.store.Append(now.DayKey(), event); err != nil {
		log.Error().Err(err).Msg("failed to persist syslog event")
	}
}

func (r *Receiver) sweepRetention() {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	if removed, err := r.store.Sweep(cutoff); err != nil {
		log.Error().Err(err).Msg("syslog retention sweep failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("syslog retention sweep completed")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
