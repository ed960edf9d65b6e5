package client

import (
	"context"
	"log"
	"time"

	"word-battle-system/models"

	"github.com/jonboulle/clockwork"
)

// EventKind identifies an observed lobby transition.
type EventKind string

const (
	EventOpponentJoined      EventKind = "opponent_joined"
	EventOpponentLeft        EventKind = "opponent_left"
	EventKicked              EventKind = "kicked"
	EventApproved            EventKind = "approved"
	EventStarted             EventKind = "started"
	EventOpponentScorePosted EventKind = "opponent_score_posted"
	EventLobbyGone           EventKind = "lobby_gone"
)

// Event is one edge-triggered observation: the transition kind plus the
// snapshot that revealed it. Lobby is nil for EventLobbyGone and for an
// EventKicked derived from a Forbidden read (the detached opponent can
// no longer see the record).
type Event struct {
	Kind  EventKind
	Lobby *models.Lobby
}

// Role is the caller's seat in the lobby.
type Role string

const (
	RoleHost     Role = "host"
	RoleOpponent Role = "opponent"
)

// DefaultPollInterval bounds staleness: a change on one side becomes
// visible to the other within roughly one interval plus latency.
const DefaultPollInterval = 1 * time.Second

// Poller re-reads one lobby on a fixed cadence and diffs consecutive
// snapshots into events. There is no push channel in this system; this
// loop is the entire delivery mechanism. Stopping it (ctx cancel) has
// no server-side effect, which is exactly why the inactivity sweep
// exists.
type Poller struct {
	API      *APIClient
	LobbyID  string
	Role     Role
	Interval time.Duration
	Clock    clockwork.Clock

	prev *models.Lobby
}

func NewPoller(api *APIClient, lobbyID string, role Role) *Poller {
	return &Poller{
		API:      api,
		LobbyID:  lobbyID,
		Role:     role,
		Interval: DefaultPollInterval,
		Clock:    clockwork.NewRealClock(),
	}
}

// Run polls until ctx is cancelled or the lobby disappears, sending
// events to the returned channel. The channel is closed when the loop
// exits.
func (p *Poller) Run(ctx context.Context) <-chan Event {
	events := make(chan Event, 16)
	go p.loop(ctx, events)
	return events
}

func (p *Poller) loop(ctx context.Context, events chan<- Event) {
	defer close(events)

	ticker := p.Clock.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			lobby, err := p.API.GetLobby(ctx, p.LobbyID)
			if err != nil {
				if IsNotFound(err) {
					// Host left or a sweep got it.
					events <- Event{Kind: EventLobbyGone}
					return
				}
				if IsForbidden(err) && p.Role == RoleOpponent {
					// The service stopped counting us as a participant:
					// the seat was cleared out from under us.
					events <- Event{Kind: EventKicked}
					return
				}
				// Transient; next tick retries.
				log.Printf("[Poller] poll failed for %s: %v", p.LobbyID, err)
				continue
			}

			kicked := false
			for _, ev := range p.diff(lobby) {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Kind == EventKicked {
					kicked = true
				}
			}
			if kicked {
				return
			}
			p.prev = lobby
		}
	}
}

// diff compares the fresh snapshot to the previous one and returns the
// transitions that happened in between, each at most once.
func (p *Poller) diff(curr *models.Lobby) []Event {
	prev := p.prev
	if prev == nil {
		// First read is the baseline; a lobby already in progress still
		// needs a Started edge so a late-joining loop reacts.
		if curr.Status == models.LobbyInProgress {
			return []Event{{Kind: EventStarted, Lobby: curr}}
		}
		return nil
	}

	var out []Event

	switch p.Role {
	case RoleHost:
		if prev.OpponentID == nil && curr.OpponentID != nil {
			out = append(out, Event{Kind: EventOpponentJoined, Lobby: curr})
		}
		if prev.OpponentID != nil && curr.OpponentID == nil {
			out = append(out, Event{Kind: EventOpponentLeft, Lobby: curr})
		}
		if prev.OpponentScore == nil && curr.OpponentScore != nil {
			out = append(out, Event{Kind: EventOpponentScorePosted, Lobby: curr})
		}
	case RoleOpponent:
		if prev.HasParticipant(p.API.UserID) && !curr.HasParticipant(p.API.UserID) {
			return append(out, Event{Kind: EventKicked, Lobby: curr})
		}
		if prev.Approval != models.ApprovalAccepted && curr.Approval == models.ApprovalAccepted {
			out = append(out, Event{Kind: EventApproved, Lobby: curr})
		}
		if prev.HostScore == nil && curr.HostScore != nil {
			out = append(out, Event{Kind: EventOpponentScorePosted, Lobby: curr})
		}
	}

	if prev.Status != models.LobbyInProgress && curr.Status == models.LobbyInProgress {
		out = append(out, Event{Kind: EventStarted, Lobby: curr})
	}

	return out
}
