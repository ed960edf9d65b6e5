package client

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"word-battle-system/models"
	"word-battle-system/services"

	"github.com/jonboulle/clockwork"
)

// QuestionSource supplies the question pool for one side of a battle.
// *services.ContentClient satisfies it; tests plug in fixtures.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, category string, subcategory int, mode string, limit int) ([]services.QuestionItem, error)
}

// Answerer produces the participant's answer for one question. The
// runner enforces the countdown around it: if the timer fires first,
// an empty answer is auto-submitted for that question.
type Answerer interface {
	Answer(ctx context.Context, q services.QuestionItem) (string, error)
}

// Runner plays one side of an in-progress battle: fetch questions, run
// the per-question countdown, score locally, submit, then wait for the
// opponent and resolve. Both participants run one independently — the
// two sides' question lists are not guaranteed identical, which is a
// deliberate simplification of this design.
type Runner struct {
	API          *APIClient
	Questions    QuestionSource
	Answerer     Answerer
	Clock        clockwork.Clock
	PollInterval time.Duration
}

func NewRunner(api *APIClient, questions QuestionSource, answerer Answerer) *Runner {
	return &Runner{
		API:          api,
		Questions:    questions,
		Answerer:     answerer,
		Clock:        clockwork.NewRealClock(),
		PollInterval: DefaultPollInterval,
	}
}

// Run plays the battle described by lobby through to the resolved
// result. It must only be called once the lobby is in progress.
func (r *Runner) Run(ctx context.Context, lobby *models.Lobby) (*services.MatchResultResponse, error) {
	if lobby.Status != models.LobbyInProgress {
		return nil, fmt.Errorf("lobby %s is not in progress", lobby.ID)
	}

	items, err := r.Questions.FetchQuestions(ctx, lobby.Category, lobby.Subcategory, lobby.GameMode, lobby.NumQuestions)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch questions: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no questions available for category %q", lobby.Category)
	}

	// Each side shuffles and truncates its own pool locally.
	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	if len(items) > lobby.NumQuestions {
		items = items[:lobby.NumQuestions]
	}

	timer := time.Duration(lobby.TimerDuration) * time.Second
	var total int64
	stats := models.PlayerStats{}

	for _, q := range items {
		answer, elapsed, err := r.askOne(ctx, q, timer)
		if err != nil {
			return nil, err
		}

		correct := answer != "" && strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.Answer))
		total += ScoreAnswer(correct, elapsed, timer)

		stats.Questions++
		if correct {
			stats.Correct++
		} else {
			stats.Wrong++
		}
		ms := elapsed.Milliseconds()
		if stats.Questions == 1 || ms < stats.FastestMs {
			stats.FastestMs = ms
		}
		if ms > stats.SlowestMs {
			stats.SlowestMs = ms
		}
	}

	if err := r.API.SubmitScore(ctx, lobby.ID, total, stats); err != nil {
		return nil, fmt.Errorf("failed to submit score: %w", err)
	}

	return r.awaitResult(ctx, lobby.ID)
}

// askOne runs the countdown for a single question. The answerer races
// the timer; on timeout the question is recorded as an empty answer
// taking the full duration.
func (r *Runner) askOne(ctx context.Context, q services.QuestionItem, timer time.Duration) (string, time.Duration, error) {
	type answerResult struct {
		text string
		err  error
	}

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	answers := make(chan answerResult, 1)
	go func() {
		text, err := r.Answerer.Answer(qctx, q)
		answers <- answerResult{text: text, err: err}
	}()

	countdown := r.Clock.NewTimer(timer)
	defer countdown.Stop()
	start := r.Clock.Now()

	select {
	case res := <-answers:
		if res.err != nil {
			// Treat an answerer failure like a blank answer rather than
			// aborting the whole match.
			return "", r.Clock.Since(start), nil
		}
		return res.text, r.Clock.Since(start), nil
	case <-countdown.Chan():
		return "", timer, nil
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
}

// awaitResult is the post-game holding state: poll the scoreboard until
// the opponent's score lands, then resolve. Either side may win the
// resolve race; the outcome is identical.
func (r *Runner) awaitResult(ctx context.Context, lobbyID string) (*services.MatchResultResponse, error) {
	ticker := r.Clock.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		scores, err := r.API.ReadScores(ctx, lobbyID)
		if err != nil {
			if IsNotFound(err) {
				return nil, fmt.Errorf("lobby %s disappeared while waiting for opponent", lobbyID)
			}
			// Transient; keep polling.
		} else if scores.BothSubmitted {
			return r.API.ResolveResult(ctx, lobbyID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.Chan():
		}
	}
}
