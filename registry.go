// Globetrot session registry
//
// Players answer ten yes/no travel questions, either alone or in a shared
// session identified by a short code chosen client-side. The registry is the
// single owner of all session and player state:
//
// - Sessions are created lazily on first join and keyed by the literal code
//   string; the registry never validates code format.
// - Each channel connection maps to at most one player in at most one session.
// - A player's answers are replaced wholesale on save, and freeze permanently
//   once the player is marked completed.
// - When every connected player has completed, collective statistics are
//   computed over the completed players and broadcast exactly once.
// - A session whose last player leaves is kept around for a drain period, so
//   a brief full disconnect does not lose the round.
// - Joining a session that has already broadcast its results starts a fresh
//   round for everyone still attached to the code.

package main

import (
	"math"
	"sync"
	"time"
)

// Player holds the data we store server-side for one connected participant.
type Player struct {
	ID          string
	Name        string
	JoinedAt    time.Time
	Answers     map[int]string
	Completed   bool
	CompletedAt time.Time
}

// Session groups the players sharing one quiz run.
type Session struct {
	Code      string
	StartTime time.Time
	IsActive  bool

	players map[string]*Player
	clients map[string]*Client

	resultsSent bool
	drain       *time.Timer
}

// Registry owns the session and player maps. Every operation runs to
// completion under the registry lock, so the many channel goroutines feeding
// it observe a serialized view, and no broadcast can interleave with a
// mutation.
type Registry struct {
	cfg *Config

	mu       sync.Mutex
	sessions map[string]*Session
	members  map[string]string // connection id -> session code
}

func newRegistry(cfg *Config) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		members:  make(map[string]string),
	}
}

// join attaches a connection to the session for code, creating the session
// if absent. An existing player record for this connection is overwritten.
// The new membership is broadcast to the whole session, and the joining
// client alone receives a session-stats snapshot to synchronize against.
func (reg *Registry) join(c *Client, code, name string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	// A connection belongs to at most one session at a time.
	if prev, ok := reg.members[c.id]; ok && prev != code {
		reg.removeLocked(c, prev, "switched sessions")
	}

	s, ok := reg.sessions[code]
	if !ok {
		s = &Session{
			Code:      code,
			StartTime: time.Now(),
			IsActive:  true,
			players:   make(map[string]*Player),
			clients:   make(map[string]*Client),
		}
		reg.sessions[code] = s
		logf(reg.cfg, "QUIZ: Created session %q", code)
	}

	if s.drain != nil {
		s.drain.Stop()
		s.drain = nil
	}

	// Joining a finished session starts a fresh round for everyone.
	if s.resultsSent {
		reg.resetRoundLocked(s)
	}

	if name == "" {
		name = syntheticName(c.id)
	}

	s.players[c.id] = &Player{
		ID:       c.id,
		Name:     name,
		JoinedAt: time.Now(),
		Answers:  make(map[int]string),
	}
	s.clients[c.id] = c
	reg.members[c.id] = code

	logf(reg.cfg, "QUIZ: Player %q joined session %q (%d connected)", name, code, len(s.players))

	reg.broadcastLocked(s, PlayerJoinedMessage{
		Type:         "player-joined",
		PlayerID:     c.id,
		PlayerName:   name,
		TotalPlayers: len(s.players),
		Players:      playerListLocked(s),
	})

	reg.sendLocked(c, sessionStatsLocked(s))
}

// saveAnswers replaces the player's answer map wholesale. A connection whose
// stored session code does not match, or which has no player record, is a
// stale client racing a reconnect; the message is dropped without complaint.
// Answers are frozen once a player has completed.
func (reg *Registry) saveAnswers(c *Client, code string, answers map[int]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s, p := reg.lookupLocked(c.id, code)
	if p == nil {
		logf(reg.cfg, "QUIZ: Ignored save-answers from stale connection %s for %q", c.id, code)
		return
	}
	if p.Completed {
		logf(reg.cfg, "QUIZ: Ignored save-answers from completed player %q in %q", p.Name, code)
		return
	}

	p.Answers = cloneAnswers(answers)

	reg.broadcastOthersLocked(s, c.id, PlayerUpdatedMessage{
		Type:       "player-updated",
		PlayerID:   c.id,
		PlayerName: p.Name,
		HasAnswers: len(p.Answers) > 0,
	})
}

// complete marks the player finished with its final answers and announces the
// new completion counts to the whole session. The first time every connected
// player is completed, collective statistics are computed and broadcast; the
// resultsSent guard together with the answer freeze makes repeated complete
// calls no-ops.
func (reg *Registry) complete(c *Client, code string, answers map[int]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s, p := reg.lookupLocked(c.id, code)
	if p == nil {
		logf(reg.cfg, "QUIZ: Ignored player-completed from stale connection %s for %q", c.id, code)
		return
	}
	if p.Completed {
		return
	}

	p.Answers = cloneAnswers(answers)
	p.Completed = true
	p.CompletedAt = time.Now()

	completed := completedCountLocked(s)
	total := len(s.players)
	allCompleted := total > 0 && completed == total

	logf(reg.cfg, "QUIZ: Player %q finished in %q (%d/%d)", p.Name, code, completed, total)

	reg.broadcastLocked(s, PlayerFinishedMessage{
		Type:             "player-finished",
		PlayerID:         c.id,
		PlayerName:       p.Name,
		CompletedPlayers: completed,
		TotalPlayers:     total,
		AllCompleted:     allCompleted,
	})

	if allCompleted && !s.resultsSent {
		s.resultsSent = true
		s.IsActive = false

		stats, answered := collectiveStatsLocked(s)

		logf(reg.cfg, "QUIZ: Broadcasting collective results for %q (%d players)", code, len(answered))

		reg.broadcastLocked(s, CollectiveResultsMessage{
			Type:            "collective-results",
			GameCode:        code,
			TotalPlayers:    len(answered),
			CollectiveStats: stats,
			Players:         answered,
		})
	}
}

// sessionStats unicasts the current snapshot for code to the requesting
// client, so a late joiner can resynchronize without waiting for an event.
// An unknown code gets no reply.
func (reg *Registry) sessionStats(c *Client, code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s, ok := reg.sessions[code]
	if !ok {
		return
	}

	reg.sendLocked(c, sessionStatsLocked(s))
}

// leave removes the player from its session on an explicit leave-session.
func (reg *Registry) leave(c *Client, code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.members[c.id] != code {
		return
	}

	reg.removeLocked(c, code, "left")
}

// disconnect performs the same cleanup as leave when a connection drops.
// Membership is removed on the first of the two, so a disconnect following
// an explicit leave is a no-op.
func (reg *Registry) disconnect(c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code, ok := reg.members[c.id]
	if !ok {
		return
	}

	reg.removeLocked(c, code, "disconnected")
}

// status returns the read-only snapshot served by the HTTP API.
func (reg *Registry) status(code string) (SessionStatus, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s, ok := reg.sessions[code]
	if !ok {
		return SessionStatus{}, false
	}

	return SessionStatus{
		Code:             s.Code,
		TotalPlayers:     len(s.players),
		CompletedPlayers: completedCountLocked(s),
		IsActive:         s.IsActive,
		StartTime:        s.StartTime,
	}, true
}

// removeLocked drops the player for c from the session keyed by code,
// notifies the remaining members, and schedules the session for draining if
// it emptied out.
func (reg *Registry) removeLocked(c *Client, code, reason string) {
	delete(reg.members, c.id)

	s, ok := reg.sessions[code]
	if !ok {
		return
	}

	p, ok := s.players[c.id]
	if !ok {
		delete(s.clients, c.id)
		return
	}

	delete(s.players, c.id)
	delete(s.clients, c.id)

	logf(reg.cfg, "QUIZ: Player %q %s session %q (%d remaining)", p.Name, reason, code, len(s.players))

	if len(s.players) > 0 {
		reg.broadcastLocked(s, PlayerLeftMessage{
			Type:         "player-left",
			PlayerID:     c.id,
			PlayerName:   p.Name,
			TotalPlayers: len(s.players),
			Players:      playerListLocked(s),
		})
		return
	}

	reg.scheduleDrainLocked(s)
}

// scheduleDrainLocked defers deletion of an emptied session. The timer
// re-checks emptiness when it fires, so a player rejoining the code in the
// meantime keeps the session alive even if the Stop in join lost the race.
func (reg *Registry) scheduleDrainLocked(s *Session) {
	code := s.Code

	logf(reg.cfg, "QUIZ: Session %q empty, draining in %s", code, reg.cfg.sessionDrain)

	s.drain = time.AfterFunc(reg.cfg.sessionDrain, func() {
		reg.mu.Lock()
		defer reg.mu.Unlock()

		cur, ok := reg.sessions[code]
		if !ok || len(cur.players) > 0 {
			return
		}

		delete(reg.sessions, code)
		logf(reg.cfg, "QUIZ: Discarded empty session %q", code)
	})
}

// resetRoundLocked clears per-round state so a code can host another run.
func (reg *Registry) resetRoundLocked(s *Session) {
	for _, p := range s.players {
		p.Answers = make(map[int]string)
		p.Completed = false
		p.CompletedAt = time.Time{}
	}
	s.resultsSent = false
	s.IsActive = true

	logf(reg.cfg, "QUIZ: Starting fresh round for session %q", s.Code)
}

// lookupLocked resolves a connection id to its player, but only when the
// stored membership matches the code the message claims.
func (reg *Registry) lookupLocked(id, code string) (*Session, *Player) {
	if reg.members[id] != code {
		return nil, nil
	}

	s, ok := reg.sessions[code]
	if !ok {
		return nil, nil
	}

	return s, s.players[id]
}

// collectiveStatsLocked tallies yes/no answers per question across completed
// players only, so a straggler who bailed before finishing never dilutes the
// denominator. Answers other than "yes"/"no" count as neither.
func collectiveStatsLocked(s *Session) (map[int]QuestionStats, []PlayerAnswers) {
	completed := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		if p.Completed {
			completed = append(completed, p)
		}
	}

	stats := make(map[int]QuestionStats, questionCount)
	for i := 1; i <= questionCount; i++ {
		var yes, no int
		for _, p := range completed {
			switch p.Answers[i] {
			case "yes":
				yes++
			case "no":
				no++
			}
		}

		total := yes + no
		qs := QuestionStats{
			Question:       questions[i-1],
			YesCount:       yes,
			NoCount:        no,
			TotalResponses: total,
			TotalPlayers:   len(completed),
		}
		if total > 0 {
			qs.YesPercentage = int(math.Round(float64(yes) / float64(total) * 100))
			qs.NoPercentage = int(math.Round(float64(no) / float64(total) * 100))
		}
		stats[i] = qs
	}

	answered := make([]PlayerAnswers, 0, len(completed))
	for _, p := range completed {
		answered = append(answered, PlayerAnswers{
			ID:      p.ID,
			Name:    p.Name,
			Answers: cloneAnswers(p.Answers),
		})
	}

	return stats, answered
}

func completedCountLocked(s *Session) int {
	count := 0
	for _, p := range s.players {
		if p.Completed {
			count++
		}
	}
	return count
}

func playerListLocked(s *Session) []PlayerInfo {
	players := make([]PlayerInfo, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, PlayerInfo{
			ID:          p.ID,
			Name:        p.Name,
			IsCompleted: p.Completed,
			JoinedAt:    p.JoinedAt,
		})
	}
	return players
}

func sessionStatsLocked(s *Session) SessionStatsMessage {
	return SessionStatsMessage{
		Type:             "session-stats",
		GameCode:         s.Code,
		TotalPlayers:     len(s.players),
		CompletedPlayers: completedCountLocked(s),
		IsActive:         s.IsActive,
		Players:          playerListLocked(s),
	}
}

// sendLocked queues msg for one client. A client that cannot keep up has the
// message dropped and resynchronizes later through get-session-stats.
func (reg *Registry) sendLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		logf(reg.cfg, "QUIZ: Dropped message to slow connection %s", c.id)
	}
}

func (reg *Registry) broadcastLocked(s *Session, msg any) {
	for _, c := range s.clients {
		reg.sendLocked(c, msg)
	}
}

func (reg *Registry) broadcastOthersLocked(s *Session, except string, msg any) {
	for id, c := range s.clients {
		if id == except {
			continue
		}
		reg.sendLocked(c, msg)
	}
}

func cloneAnswers(answers map[int]string) map[int]string {
	cloned := make(map[int]string, len(answers))
	for i, a := range answers {
		cloned[i] = a
	}
	return cloned
}

func syntheticName(id string) string {
	if len(id) > 6 {
		id = id[:6]
	}
	return "Player_" + id
}
