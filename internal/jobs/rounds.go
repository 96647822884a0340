package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/features/game"
)

// RoundEventKind — что произошло в цикле раундов.
type RoundEventKind int

const (
	RoundOpened   RoundEventKind = iota + 1 // Новый раунд принимает ставки
	BettingClosed                           // Приём ставок закрыт, скоро бросок
	RoundSettled                            // Раунд рассчитан
	RoundsPaused                            // Цикл остановлен: слишком много раундов без ставок
	RoundFailed                             // Цикл прерван ошибкой
)

// RoundEvent — результат шага цикла раундов.
type RoundEvent struct {
	Kind       RoundEventKind
	ChatID     int64
	Status     *game.Status
	Settlement *game.Settlement
	Err        error
}

// RoundTiming — длительности фаз цикла.
type RoundTiming struct {
	BetWindow time.Duration // Сколько принимаются ставки
	RollDelay time.Duration // Пауза между закрытием ставок и броском
	IdleLimit int           // После стольких пустых раундов подряд цикл встаёт (0 — никогда)
}

// task — запущенный цикл одного чата.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// RoundRunner гоняет раунды в чатах: открыть → ждать → закрыть → бросить → рассчитать → снова.
// Каждый чат — отдельная отменяемая задача; все итоги идут в канал Events.
type RoundRunner struct {
	games  *game.Service
	timing RoundTiming
	events chan RoundEvent

	mu       sync.Mutex
	tasks    map[int64]*task
	wg       sync.WaitGroup
	shutdown bool
}

// NewRoundRunner создаёт исполнитель циклов.
func NewRoundRunner(games *game.Service, timing RoundTiming) *RoundRunner {
	return &RoundRunner{
		games:  games,
		timing: timing,
		events: make(chan RoundEvent, 64),
		tasks:  make(map[int64]*task),
	}
}

// Events возвращает канал событий. Закрывается после Shutdown.
func (r *RoundRunner) Events() <-chan RoundEvent {
	return r.events
}

// Running сообщает, идёт ли цикл в чате.
func (r *RoundRunner) Running(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[chatID]
	return ok
}

// Start открывает раунд и запускает цикл в чате.
func (r *RoundRunner) Start(ctx context.Context, chatID int64) (*game.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil, context.Canceled
	}
	if _, ok := r.tasks[chatID]; ok {
		return nil, common.ErrGameInProgress
	}

	r.games.ResetIdle(ctx, chatID)
	st, err := r.games.StartRound(ctx, chatID)
	if err != nil {
		return nil, err
	}
	r.spawn(chatID, st)
	return st, nil
}

// Resume подхватывает раунды, сохранённые до перезапуска, и продолжает их циклы.
func (r *RoundRunner) Resume(ctx context.Context) (int, error) {
	chatIDs, err := r.games.Recover(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	resumed := 0
	for _, chatID := range chatIDs {
		if _, ok := r.tasks[chatID]; ok || r.shutdown {
			continue
		}
		st, err := r.games.Status(ctx, chatID)
		if err != nil || st.State == game.StateOver {
			continue
		}
		r.spawn(chatID, st)
		resumed++
	}
	if resumed > 0 {
		log.WithField("chats", resumed).Info("Циклы раундов восстановлены")
	}
	return resumed, nil
}

// Stop отменяет цикл чата, дожидается его завершения и возвращает ставки.
func (r *RoundRunner) Stop(ctx context.Context, chatID int64) (*game.StopResult, error) {
	r.cancel(chatID)
	return r.games.StopGame(ctx, chatID)
}

// Shutdown отменяет все циклы, ждёт их завершения и закрывает канал событий.
// Незавершённые раунды остаются в хранилище и подхватываются через Resume.
func (r *RoundRunner) Shutdown() {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	for _, t := range r.tasks {
		t.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	close(r.events)
	log.Info("Циклы раундов остановлены")
}

// spawn запускает задачу. Вызывается под r.mu.
func (r *RoundRunner) spawn(chatID int64, st *game.Status) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.tasks[chatID] = t

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(t.done)
		defer r.forget(chatID, t)
		r.loop(ctx, chatID, st)
	}()
}

func (r *RoundRunner) cancel(chatID int64) {
	r.mu.Lock()
	t, ok := r.tasks[chatID]
	r.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

func (r *RoundRunner) forget(chatID int64, t *task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[chatID] == t {
		delete(r.tasks, chatID)
	}
	t.cancel()
}

// loop — цикл раундов чата. st — состояние раунда, с которого начинаем.
func (r *RoundRunner) loop(ctx context.Context, chatID int64, st *game.Status) {
	logger := log.WithField("chat_id", chatID)
	if st.State == game.StateWaiting {
		r.emit(ctx, RoundEvent{Kind: RoundOpened, ChatID: chatID, Status: st})
	}

	for {
		if st.State == game.StateWaiting {
			if !sleep(ctx, r.timing.BetWindow) {
				return
			}
			if err := r.games.CloseBetting(ctx, chatID); err != nil {
				r.fail(ctx, chatID, err)
				return
			}
			closed, err := r.games.Status(ctx, chatID)
			if err != nil {
				r.fail(ctx, chatID, err)
				return
			}
			r.emit(ctx, RoundEvent{Kind: BettingClosed, ChatID: chatID, Status: closed})
		}

		if !sleep(ctx, r.timing.RollDelay) {
			return
		}
		settlement, err := r.games.Settle(ctx, chatID)
		if err != nil {
			r.fail(ctx, chatID, err)
			return
		}
		r.emit(ctx, RoundEvent{Kind: RoundSettled, ChatID: chatID, Settlement: settlement})

		if r.timing.IdleLimit > 0 && settlement.IdleRounds >= r.timing.IdleLimit {
			logger.WithField("idle_rounds", settlement.IdleRounds).Info("Цикл раундов приостановлен: нет ставок")
			r.emit(ctx, RoundEvent{Kind: RoundsPaused, ChatID: chatID, Settlement: settlement})
			return
		}

		st, err = r.games.StartRound(ctx, chatID)
		if err != nil {
			r.fail(ctx, chatID, err)
			return
		}
		r.emit(ctx, RoundEvent{Kind: RoundOpened, ChatID: chatID, Status: st})
	}
}

func (r *RoundRunner) fail(ctx context.Context, chatID int64, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	log.WithError(err).WithField("chat_id", chatID).Error("Цикл раундов прерван")
	r.emit(ctx, RoundEvent{Kind: RoundFailed, ChatID: chatID, Err: err})
}

// emit отправляет событие, не блокируясь после отмены задачи.
func (r *RoundRunner) emit(ctx context.Context, ev RoundEvent) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

// sleep ждёт d или отмены; false — задача отменена.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
