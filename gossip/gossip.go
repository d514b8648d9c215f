// Package gossip wires hashicorp/serf (and, through it, hashicorp/memberlist)
// as an example unstructured-mesh peer-discovery collaborator, per
// SPEC_FULL.md §4.13 — spec §1 calls "unstructured mesh" out by name as an
// example P2P overlay this framework is meant to host. Membership changes
// surface purely as Host.AddOutgoingShuttle / Host.RemoveOutgoingShuttle
// calls; no routing logic lives here beyond that translation.
//
// Grounded on raskyld-grinta's fabric.go: the same serf.Config/EventCh
// setup and handleEvents dispatch-on-event-type loop, narrowed from
// grinta's full name-resolution/query-response protocol down to plain
// join/leave membership events, since this framework has no endpoint
// directory of its own to keep in sync.
package gossip

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/memberlist"
	"github.com/hashicorp/serf/serf"

	"github.com/offbynull-go/peernetic"
)

// Config configures a Gateway.
type Config struct {
	NodeName string
	BindAddr string
	BindPort int
	Tags     map[string]string
	Logger   *slog.Logger

	// PeerPrefix derives the Address prefix a discovered member's traffic
	// should be routed under.
	PeerPrefix func(member serf.Member) peernetic.Address
	// ShuttleFactory builds the outgoing Shuttle for a newly discovered
	// member, given that member's serf.Member record (which carries its
	// gossip-advertised Addr and Port).
	ShuttleFactory func(member serf.Member) (peernetic.Shuttle, error)
}

// Gateway joins a Serf cluster and mirrors its membership into host's
// OutputGateway.
type Gateway struct {
	host    *peernetic.Host
	serf    *serf.Serf
	eventCh chan serf.Event
	cfg     Config
	logger  *slog.Logger

	dropCh chan struct{}
	wg     sync.WaitGroup
}

// Join creates a Serf agent bound per cfg and starts mirroring its
// membership events into host.
func Join(host *peernetic.Host, cfg Config) (*Gateway, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	eventCh := make(chan serf.Event, 256)

	serfCfg := serf.DefaultConfig()
	serfCfg.MemberlistConfig = memberlist.DefaultLANConfig()
	serfCfg.MemberlistConfig.Name = cfg.NodeName
	serfCfg.MemberlistConfig.BindAddr = cfg.BindAddr
	serfCfg.MemberlistConfig.BindPort = cfg.BindPort
	serfCfg.NodeName = cfg.NodeName
	serfCfg.Tags = cfg.Tags
	serfCfg.EventCh = eventCh
	serfCfg.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	serfCfg.MemberlistConfig.Logger = serfCfg.Logger

	s, err := serf.Create(serfCfg)
	if err != nil {
		return nil, fmt.Errorf("gossip: create serf agent: %w", err)
	}

	g := &Gateway{
		host:    host,
		serf:    s,
		eventCh: eventCh,
		cfg:     cfg,
		logger:  logger,
		dropCh:  make(chan struct{}),
	}
	g.wg.Add(1)
	go g.handleEvents()
	return g, nil
}

// JoinCluster attempts to join the cluster through the given existing
// members, returning the number successfully contacted.
func (g *Gateway) JoinCluster(existing []string) (int, error) {
	return g.serf.Join(existing, true)
}

// Members returns the current known membership.
func (g *Gateway) Members() []serf.Member {
	return g.serf.Members()
}

// Leave gracefully leaves the cluster and stops the Gateway's event loop.
func (g *Gateway) Leave() error {
	err := g.serf.Leave()
	close(g.dropCh)
	g.wg.Wait()
	g.serf.Shutdown()
	return err
}

func (g *Gateway) handleEvents() {
	defer g.wg.Done()
	for {
		var event serf.Event
		select {
		case event = <-g.eventCh:
		case <-g.dropCh:
			return
		}

		me, ok := event.(serf.MemberEvent)
		if !ok {
			continue
		}
		switch me.Type {
		case serf.EventMemberJoin, serf.EventMemberUpdate:
			for _, m := range me.Members {
				g.onJoin(m)
			}
		case serf.EventMemberLeave, serf.EventMemberFailed:
			for _, m := range me.Members {
				g.onLeave(m)
			}
		}
	}
}

func (g *Gateway) onJoin(m serf.Member) {
	if g.cfg.PeerPrefix == nil || g.cfg.ShuttleFactory == nil {
		return
	}
	prefix := g.cfg.PeerPrefix(m)
	shuttle, err := g.cfg.ShuttleFactory(m)
	if err != nil {
		g.logger.Warn("gossip: failed to build shuttle for peer", "peer", m.Name, "error", err)
		return
	}
	if err := g.host.AddOutgoingShuttle(prefix, shuttle); err != nil {
		g.logger.Warn("gossip: failed to register peer shuttle", "peer", m.Name, "error", err)
		return
	}
	g.logger.Info("peer joined", "peer", m.Name, "prefix", prefix.String())
}

func (g *Gateway) onLeave(m serf.Member) {
	if g.cfg.PeerPrefix == nil {
		return
	}
	prefix := g.cfg.PeerPrefix(m)
	if err := g.host.RemoveOutgoingShuttle(prefix); err != nil {
		g.logger.Warn("gossip: failed to remove peer shuttle", "peer", m.Name, "error", err)
		return
	}
	g.logger.Info("peer left", "peer", m.Name, "prefix", prefix.String())
}
