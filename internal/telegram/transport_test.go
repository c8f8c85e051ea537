package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aixgo-dev/smartmath/internal/chat"
	"github.com/aixgo-dev/smartmath/pkg/security"
	"github.com/aixgo-dev/smartmath/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	mu        sync.Mutex
	sent      []*bot.SendMessageParams
	answered  []string
	commands  []models.BotCommand
	closed    int
	sendErr   error
	cmdErr    error
	closeErr  error
	startedCh chan struct{}
}

func (f *fakeAPI) Start(ctx context.Context) {
	if f.startedCh != nil {
		close(f.startedCh)
	}
	<-ctx.Done()
}

func (f *fakeAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, p)
	return &models.Message{ID: len(f.sent)}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, p.CallbackQueryID)
	return true, nil
}

func (f *fakeAPI) SetMyCommands(_ context.Context, p *bot.SetMyCommandsParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmdErr != nil {
		return false, f.cmdErr
	}
	f.commands = p.Commands
	return true, nil
}

func (f *fakeAPI) Close(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr == nil, f.closeErr
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeAPI) message(i int) *bot.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[i]
}

func textUpdate(user int64, msgID int, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:   msgID,
		From: &models.User{ID: user},
		Chat: models.Chat{ID: user},
		Text: text,
	}}
}

func callbackUpdate(user int64, id, data string) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   id,
		From: models.User{ID: user},
		Message: models.MaybeInaccessibleMessage{
			Message: &models.Message{ID: 9, Chat: models.Chat{ID: -100}},
		},
		Data: data,
	}}
}

func newTestTransport(t *testing.T, api *fakeAPI) (*Transport, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(session.DefaultHistorySize)
	d := chat.New(store, security.NewIntervalLimiter(0))
	tr := NewWithAPI(api, d, Config{SendRate: 1000, SendBurst: 100}, nil)
	t.Cleanup(func() {
		_ = tr.queue.Close(context.Background())
		_ = store.Close()
	})
	return tr, store
}

func TestToEvent(t *testing.T) {
	tests := []struct {
		name   string
		update *models.Update
		want   chat.Event
		wantOK bool
	}{
		{name: "nil", update: nil},
		{name: "empty", update: &models.Update{}},
		{
			name:   "text",
			update: textUpdate(5, 10, "2+2"),
			want:   chat.Event{Kind: chat.EventText, UserID: 5, ChatID: 5, MessageID: 10, Text: "2+2"},
			wantOK: true,
		},
		{
			name:   "command",
			update: textUpdate(5, 11, "/calc@SmartMathBot"),
			want:   chat.Event{Kind: chat.EventCommand, UserID: 5, ChatID: 5, MessageID: 11, Text: "/calc@SmartMathBot", Command: "calc"},
			wantOK: true,
		},
		{
			name:   "callback",
			update: callbackUpdate(5, "q1", "reuse:5:0"),
			want:   chat.Event{Kind: chat.EventCallback, UserID: 5, ChatID: -100, CallbackID: "q1", Data: "reuse:5:0"},
			wantOK: true,
		},
		{
			name:   "message without text",
			update: &models.Update{Message: &models.Message{From: &models.User{ID: 1}, Chat: models.Chat{ID: 1}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toEvent(tt.update)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleUpdateRepliesInOrder(t *testing.T) {
	api := &fakeAPI{}
	tr, store := newTestTransport(t, api)
	ctx := context.Background()

	tr.HandleUpdate(ctx, textUpdate(7, 1, "/calc"))
	tr.HandleUpdate(ctx, textUpdate(7, 2, "x^2-4=0"))

	require.Eventually(t, func() bool { return api.sentCount() == 2 }, time.Second, 5*time.Millisecond)

	prompt := api.message(0)
	assert.Equal(t, chat.CalcPromptText, prompt.Text)
	require.NotNil(t, prompt.ReplyParameters)
	assert.Equal(t, 1, prompt.ReplyParameters.MessageID)

	answer := api.message(1)
	assert.Equal(t, "Solved for x:\n[-2, 2]", answer.Text)
	assert.Equal(t, int64(7), answer.ChatID)
	markup, ok := answer.ReplyMarkup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "reuse:7:0", markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "Solve for x", markup.InlineKeyboard[0][1].Text)
	assert.Equal(t, "hist:7:0", markup.InlineKeyboard[1][0].CallbackData)

	hist, err := store.History(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestHandleUpdateCallbackAckedOnce(t *testing.T) {
	api := &fakeAPI{}
	tr, _ := newTestTransport(t, api)

	tr.HandleUpdate(context.Background(), callbackUpdate(7, "q1", "reuse:7:3"))

	require.Eventually(t, func() bool { return api.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, tr.queue.Close(context.Background()))

	assert.Equal(t, chat.EntryNotFoundText, api.message(0).Text)
	assert.Equal(t, int64(-100), api.message(0).ChatID)
	assert.Nil(t, api.message(0).ReplyParameters)
	assert.Equal(t, []string{"q1"}, api.answered)
}

func TestHandleUpdateAfterClose(t *testing.T) {
	api := &fakeAPI{}
	tr, _ := newTestTransport(t, api)
	require.NoError(t, tr.queue.Close(context.Background()))

	tr.HandleUpdate(context.Background(), callbackUpdate(7, "q2", "hist:7:0"))

	assert.Zero(t, api.sentCount())
	assert.Equal(t, []string{"q2"}, api.answered, "dropped callbacks are still acknowledged")
}

func TestSendFailureRedactsToken(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New(`Post "https://api.telegram.org/bot123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA/sendMessage": timeout`)}
	tr, _ := newTestTransport(t, api)

	r := &responder{t: tr, chatID: 1}
	err := r.Reply(context.Background(), chat.Reply{Text: "hi"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AAAAAAAA")
	assert.Contains(t, err.Error(), "[REDACTED]")
}

func TestSendCircuitOpens(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("bad gateway")}
	store := session.NewMemoryStore(session.DefaultHistorySize)
	defer store.Close()
	tr := NewWithAPI(api, chat.New(store, nil), Config{SendRate: 1000, SendBurst: 100, BreakerFailures: 2, BreakerReset: time.Hour}, nil)
	defer tr.queue.Close(context.Background())

	r := &responder{t: tr, chatID: 1}
	for i := 0; i < 2; i++ {
		assert.Error(t, r.Reply(context.Background(), chat.Reply{Text: "x"}))
	}
	err := r.Reply(context.Background(), chat.Reply{Text: "x"})
	assert.ErrorContains(t, err, security.ErrCircuitOpen.Error())
}

func TestRegisterCommands(t *testing.T) {
	api := &fakeAPI{}
	tr, _ := newTestTransport(t, api)

	tr.RegisterCommands(context.Background())
	require.Len(t, api.commands, 4)
	assert.Equal(t, models.BotCommand{Command: "start", Description: "Start the bot"}, api.commands[0])

	failing := &fakeAPI{cmdErr: errors.New("unauthorized")}
	tr2, _ := newTestTransport(t, failing)
	tr2.RegisterCommands(context.Background())
	assert.Empty(t, failing.commands)
}

func TestRunAndClose(t *testing.T) {
	api := &fakeAPI{startedCh: make(chan struct{}), closeErr: errors.New("too many requests")}
	tr, _ := newTestTransport(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	<-api.startedCh
	tr.HandleUpdate(ctx, textUpdate(3, 1, "/help"))
	require.Eventually(t, func() bool { return api.sentCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	tr.Close(context.Background())
	assert.Equal(t, 1, api.closed)
	assert.Len(t, api.commands, 4)
}
