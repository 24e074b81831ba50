// Package metrics exposes a pull-based Prometheus view of the same
// counters the stats reporter (spec §4.8) dumps on the reload signal, plus
// process gauges for uptime and for RSS sampled from gopsutil. It is a supplement to
// the signal-driven dump, never a replacement: the reload signal remains
// the primary, spec-mandated interface.
package metrics

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"relaychat/internal/roster"
)

// Counters mirrors roster.Counters as a set of Prometheus counters.
type Counters struct {
	auth, name, say, kick, list, leave prometheus.Counter
	rosterSize                         prometheus.GaugeFunc
	uptime                             prometheus.GaugeFunc
	rss                                prometheus.GaugeFunc
}

// NewCounters registers the chat counters and process gauges against reg.
// The roster size (from r) and the process uptime and RSS are sampled on
// every scrape; the chat counters are not read from r on scrape and only
// advance when a Sync observes a fresh snapshot.
func NewCounters(reg prometheus.Registerer, r *roster.Roster) *Counters {
	start := time.Now()
	proc, procErr := process.NewProcess(int32(os.Getpid()))

	c := &Counters{
		auth:  promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "chat_auth_total", Help: "AUTH records processed."}),
		name:  promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "chat_name_total", Help: "NAME records processed."}),
		say:   promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "chat_say_total", Help: "SAY records processed."}),
		kick:  promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "chat_kick_total", Help: "KICK records processed."}),
		list:  promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "chat_list_total", Help: "LIST records processed."}),
		leave: promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "chat_leave_total", Help: "LEAVE records processed."}),
	}
	c.rosterSize = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chat_roster_size",
		Help: "Current number of connected, handshake-complete clients.",
	}, func() float64 { return float64(r.Size()) })
	c.uptime = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chat_server_uptime_seconds",
		Help: "Seconds since the server process started.",
	}, func() float64 { return time.Since(start).Seconds() })
	c.rss = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chat_server_rss_bytes",
		Help: "Resident set size of the server process, sampled via gopsutil.",
	}, func() float64 {
		if procErr != nil {
			return 0
		}
		mem, err := proc.MemoryInfo()
		if err != nil || mem == nil {
			return 0
		}
		return float64(mem.RSS)
	})
	return c
}

// Sync brings the Prometheus counters up to date with a fresh
// roster.Counters snapshot. Counters only ever increase (spec §3), so this
// adds the delta since the last sync rather than setting an absolute value.
type Sync struct {
	c    *Counters
	last roster.Counters
}

// NewSync returns a Sync bound to c.
func NewSync(c *Counters) *Sync { return &Sync{c: c} }

// Observe applies the delta between cur and the previously observed
// snapshot to the Prometheus counters.
func (s *Sync) Observe(cur roster.Counters) {
	s.c.auth.Add(float64(cur.Auth - s.last.Auth))
	s.c.name.Add(float64(cur.Name - s.last.Name))
	s.c.say.Add(float64(cur.Say - s.last.Say))
	s.c.kick.Add(float64(cur.Kick - s.last.Kick))
	s.c.list.Add(float64(cur.List - s.last.List))
	s.c.leave.Add(float64(cur.Leave - s.last.Leave))
	s.last = cur
}

// Server serves the /metrics endpoint until ctx is cancelled.
func Server(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
