package bot

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"spindrift/pkg/channels/telegram"
	"spindrift/pkg/config"
	"spindrift/pkg/reply"
	"spindrift/pkg/settings"
)

type sentText struct {
	chatID   int64
	text     string
	replyTo  int
	keyboard bool
}

type editedText struct {
	chatID    int64
	messageID int
	text      string
}

type fakeTransport struct {
	mu          sync.Mutex
	nextID      int
	deliveries  []reply.Delivery
	texts       []sentText
	edits       []editedText
	answers     []string
	synced      []telegram.CommandInfo
	img         image.Image
	downloadErr error
	denied      bool
	allowUsers  []int64
	polls       int
	queued      []tgbotapi.Update
}

func (f *fakeTransport) Deliver(ctx context.Context, chatID int64, d reply.Delivery) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string, replyTo int, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{chatID: chatID, text: text, replyTo: replyTo, keyboard: keyboard != nil})
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedText{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeTransport) AnswerCallback(ctx context.Context, queryID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, queryID)
	return nil
}

func (f *fakeTransport) DownloadImage(ctx context.Context, photos []tgbotapi.PhotoSize) (image.Image, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.img, nil
}

func (f *fakeTransport) SyncCommands(ctx context.Context, cmds []telegram.CommandInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = cmds
	return nil
}

func (f *fakeTransport) Poll(ctx context.Context, fn func(tgbotapi.Update)) error {
	f.mu.Lock()
	f.polls++
	queued := f.queued
	f.queued = nil
	f.mu.Unlock()

	for _, u := range queued {
		fn(u)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeTransport) IsAllowed(userID, chatID int64, username string) bool {
	if f.denied {
		return false
	}
	if f.allowUsers == nil {
		return true
	}
	for _, id := range f.allowUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (f *fakeTransport) texted() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.texts...)
}

func newTestBot(t *testing.T) (*Bot, *fakeTransport, *settings.SQLStore) {
	t.Helper()
	store, err := settings.Open(context.Background(), filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	transport := &fakeTransport{}
	b, err := New(transport, store, config.DefaultLabels(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b, transport, store
}

func commandUpdate(userID int64, messageID int, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: messageID,
		From:      &tgbotapi.User{ID: userID, UserName: "tester"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}}
}

func TestNewRegistersBuiltinsInOrder(t *testing.T) {
	b, _, _ := newTestBot(t)

	if got, want := b.Commands(), []string{"start", "help", "set", "params"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if !b.HasCommand("params") || b.HasCommand("missing") {
		t.Fatal("HasCommand returned the wrong answer")
	}
	if _, ok := b.CommandWithName("/SET"); !ok {
		t.Fatal("CommandWithName should normalize the name")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, &memStore{}, config.DefaultLabels(), nil); err == nil {
		t.Fatal("expected error without transport")
	}
	if _, err := New(&fakeTransport{}, nil, config.DefaultLabels(), nil); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestSetThenParams(t *testing.T) {
	b, transport, _ := newTestBot(t)
	ctx := context.Background()

	b.dispatch(ctx, commandUpdate(1, 10, "/set x 5"))
	b.dispatch(ctx, commandUpdate(1, 11, "/params"))

	if len(transport.deliveries) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(transport.deliveries))
	}
	if got := transport.deliveries[0].Text; got != `The parameter "x" successfully set to "5"` {
		t.Fatalf("unexpected /set reply %q", got)
	}
	if got, want := transport.deliveries[1].Text, "Parameters are:\n========\nx = 5"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMalformedSetRepliesWithUsage(t *testing.T) {
	b, transport, store := newTestBot(t)

	b.dispatch(context.Background(), commandUpdate(1, 10, "/set onlyone"))

	if len(transport.deliveries) != 1 || transport.deliveries[0].Text != config.DefaultLabels().SetUsage {
		t.Fatalf("expected usage reply, got %+v", transport.deliveries)
	}
	cfg, _ := store.Get(context.Background(), 1)
	if len(cfg) != 0 {
		t.Fatalf("nothing should be stored, got %v", cfg)
	}
}

func TestRegisterCommandReplacesHandler(t *testing.T) {
	b, transport, _ := newTestBot(t)

	first := func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error) {
		return reply.Text("first"), nil
	}
	second := func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error) {
		return reply.Text("second " + cfg["x"]), nil
	}
	if err := b.RegisterCommand("rate", first); err != nil {
		t.Fatalf("RegisterCommand failed: %v", err)
	}
	if err := b.RegisterCommand("rate", second); err != nil {
		t.Fatalf("RegisterCommand failed: %v", err)
	}

	want := []string{"start", "help", "set", "params", "rate"}
	if got := b.Commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	ctx := context.Background()
	b.dispatch(ctx, commandUpdate(3, 1, "/set x 7"))
	b.dispatch(ctx, commandUpdate(3, 2, "/rate"))

	last := transport.deliveries[len(transport.deliveries)-1]
	if last.Text != "second 7" {
		t.Fatalf("expected the replacement handler with settings, got %q", last.Text)
	}
}

func TestRegisterCommandRejectsNil(t *testing.T) {
	b, _, _ := newTestBot(t)
	if err := b.RegisterCommand("x", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
	if err := b.RegisterCommand("", func(context.Context, settings.UserConfig) (reply.Result, error) {
		return reply.Text("x"), nil
	}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestButtonsAndCallback(t *testing.T) {
	b, transport, _ := newTestBot(t)
	ctx := context.Background()

	err := b.RegisterCommand("rate", func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error) {
		return reply.Result{Text: "Cap", ImagePath: "img.png", Buttons: []string{"A", "B"}}, nil
	})
	if err != nil {
		t.Fatalf("RegisterCommand failed: %v", err)
	}

	b.dispatch(ctx, commandUpdate(1, 42, "/rate"))

	if len(transport.deliveries) != 3 {
		t.Fatalf("expected 3 deliveries, got %+v", transport.deliveries)
	}
	kinds := []reply.Kind{transport.deliveries[0].Kind, transport.deliveries[1].Kind, transport.deliveries[2].Kind}
	if !reflect.DeepEqual(kinds, []reply.Kind{reply.KindText, reply.KindPhoto, reply.KindPrompt}) {
		t.Fatalf("unexpected delivery order %v", kinds)
	}
	prompt := transport.deliveries[2]
	if prompt.ReplyTo != 42 || prompt.Text != "Rate:" || prompt.Buttons[0].Data != "A_42" || prompt.Buttons[1].Data != "B_42" {
		t.Fatalf("unexpected prompt %+v", prompt)
	}

	b.dispatch(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q1",
		Data:    "A_42",
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{MessageID: 43, Chat: &tgbotapi.Chat{ID: 1}},
	}})

	if len(transport.edits) != 1 {
		t.Fatalf("expected one edit, got %+v", transport.edits)
	}
	if got := transport.edits[0]; got.messageID != 43 || got.chatID != 1 || got.text != `You chose "A"` {
		t.Fatalf("unexpected edit %+v", got)
	}
	if !reflect.DeepEqual(transport.answers, []string{"q1"}) {
		t.Fatalf("expected the query to be answered, got %v", transport.answers)
	}
}

func TestMalformedCallbackIsAnsweredWithoutEdit(t *testing.T) {
	b, transport, _ := newTestBot(t)

	b.dispatch(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q2",
		Data:    "garbage",
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: 1}},
	}})

	if len(transport.edits) != 0 {
		t.Fatalf("expected no edit, got %+v", transport.edits)
	}
	if len(transport.answers) != 1 {
		t.Fatalf("expected the query to be answered, got %v", transport.answers)
	}
}

func TestCallbackWithoutSenderRespectsAllowList(t *testing.T) {
	b, transport, _ := newTestBot(t)
	ctx := context.Background()
	press := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q3",
		Data:    "A_42",
		Message: &tgbotapi.Message{MessageID: 43, Chat: &tgbotapi.Chat{ID: 1}},
	}}

	transport.allowUsers = []int64{1}
	b.dispatch(ctx, press)
	if len(transport.edits) != 0 || len(transport.answers) != 0 {
		t.Fatalf("expected the press to be dropped, got edits %+v answers %v", transport.edits, transport.answers)
	}

	transport.allowUsers = nil
	b.dispatch(ctx, press)
	if len(transport.edits) != 1 || transport.edits[0].messageID != 43 {
		t.Fatalf("expected one edit without an allow-list, got %+v", transport.edits)
	}
}

func TestCallbackFromUnlistedUserIsDropped(t *testing.T) {
	b, transport, _ := newTestBot(t)
	transport.allowUsers = []int64{1}

	b.dispatch(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q4",
		Data:    "A_42",
		From:    &tgbotapi.User{ID: 2},
		Message: &tgbotapi.Message{MessageID: 43, Chat: &tgbotapi.Chat{ID: 2}},
	}})

	if len(transport.edits) != 0 {
		t.Fatalf("expected no edit, got %+v", transport.edits)
	}
}

func TestCommandFailureRepliesWithLabel(t *testing.T) {
	b, transport, _ := newTestBot(t)
	ctx := context.Background()

	_ = b.RegisterCommand("boom", func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error) {
		return reply.Result{}, errors.New("boom")
	})
	_ = b.RegisterCommand("empty", func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error) {
		return reply.Result{}, nil
	})

	b.dispatch(ctx, commandUpdate(1, 7, "/boom"))
	b.dispatch(ctx, commandUpdate(1, 8, "/empty"))

	texts := transport.texted()
	if len(texts) != 2 {
		t.Fatalf("expected 2 failure replies, got %+v", texts)
	}
	for i, want := range []int{7, 8} {
		if texts[i].text != config.DefaultLabels().CommandFailed || texts[i].replyTo != want {
			t.Fatalf("unexpected failure reply %+v", texts[i])
		}
	}
	if len(transport.deliveries) != 0 {
		t.Fatalf("nothing else should be sent, got %+v", transport.deliveries)
	}
}

func TestUnknownAndPlainMessagesAreIgnored(t *testing.T) {
	b, transport, _ := newTestBot(t)
	ctx := context.Background()

	b.dispatch(ctx, commandUpdate(1, 1, "/nope"))
	b.dispatch(ctx, commandUpdate(1, 2, "hello"))
	b.dispatch(ctx, tgbotapi.Update{})

	if len(transport.deliveries) != 0 || len(transport.texted()) != 0 {
		t.Fatal("expected no replies")
	}
}

func TestDeniedUsersAreIgnored(t *testing.T) {
	b, transport, _ := newTestBot(t)
	transport.denied = true

	b.dispatch(context.Background(), commandUpdate(1, 1, "/start"))
	if len(transport.deliveries) != 0 {
		t.Fatal("denied user should get no reply")
	}
}

func TestPhotoHandler(t *testing.T) {
	b, transport, store := newTestBot(t)
	ctx := context.Background()
	transport.img = image.NewGray(image.Rect(0, 0, 2, 2))

	if err := store.Record(ctx, 5, "mode", "gray"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	var gotMode string
	var gotBounds image.Rectangle
	b.RegisterPhotoHandler(func(ctx context.Context, img image.Image, cfg settings.UserConfig) error {
		t.Fatal("replaced photo handler must not run")
		return nil
	})
	b.RegisterPhotoHandler(func(ctx context.Context, img image.Image, cfg settings.UserConfig) error {
		gotMode = cfg["mode"]
		gotBounds = img.Bounds()
		return nil
	})

	update := commandUpdate(5, 1, "")
	update.Message.Photo = []tgbotapi.PhotoSize{{FileID: "f", Width: 2, Height: 2}}
	b.dispatch(ctx, update)

	if gotMode != "gray" || gotBounds.Dx() != 2 {
		t.Fatalf("photo handler saw mode=%q bounds=%v", gotMode, gotBounds)
	}
}

func TestPhotoDownloadFailureSkipsHandler(t *testing.T) {
	b, transport, _ := newTestBot(t)
	transport.downloadErr = errors.New("too large")

	called := false
	b.RegisterPhotoHandler(func(ctx context.Context, img image.Image, cfg settings.UserConfig) error {
		called = true
		return nil
	})

	update := commandUpdate(5, 1, "")
	update.Message.Photo = []tgbotapi.PhotoSize{{FileID: "f"}}
	b.dispatch(context.Background(), update)

	if called {
		t.Fatal("handler should not run without an image")
	}
}

func TestStartAndHelpMessages(t *testing.T) {
	b, transport, _ := newTestBot(t)
	ctx := context.Background()

	if err := b.SetStartMessage("hi there"); err != nil {
		t.Fatalf("SetStartMessage failed: %v", err)
	}
	if err := b.SetHelpMessage("ask me"); err != nil {
		t.Fatalf("SetHelpMessage failed: %v", err)
	}
	if b.StartMessage() != "hi there" || b.HelpMessage() != "ask me" {
		t.Fatalf("getters returned %q / %q", b.StartMessage(), b.HelpMessage())
	}

	b.dispatch(ctx, commandUpdate(1, 1, "/start"))
	b.dispatch(ctx, commandUpdate(1, 2, "/help"))
	if transport.deliveries[0].Text != "hi there" || transport.deliveries[1].Text != "ask me" {
		t.Fatalf("unexpected replies %+v", transport.deliveries)
	}
	if got := b.Commands(); !reflect.DeepEqual(got, []string{"start", "help", "set", "params"}) {
		t.Fatalf("setters must not reorder commands: %v", got)
	}
}

func TestApplyLabels(t *testing.T) {
	b, transport, _ := newTestBot(t)
	ctx := context.Background()

	_ = b.RegisterCommand("params", func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error) {
		return reply.Text("custom params"), nil
	})

	labels := config.DefaultLabels()
	labels.SetUsage = "Nutzung: /set <param> <wert>"
	labels.Start = "Hallo!"
	labels.ButtonChosen = "Gewählt: %s"
	if err := b.ApplyLabels(labels); err != nil {
		t.Fatalf("ApplyLabels failed: %v", err)
	}

	b.dispatch(ctx, commandUpdate(1, 1, "/set"))
	b.dispatch(ctx, commandUpdate(1, 2, "/start"))
	b.dispatch(ctx, commandUpdate(1, 3, "/params"))

	got := []string{transport.deliveries[0].Text, transport.deliveries[1].Text, transport.deliveries[2].Text}
	want := []string{"Nutzung: /set <param> <wert>", "Hallo!", "custom params"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if b.StartMessage() != "Hallo!" {
		t.Fatalf("start message not updated: %q", b.StartMessage())
	}

	b.dispatch(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q",
		Data:    "A_1",
		Message: &tgbotapi.Message{MessageID: 2, Chat: &tgbotapi.Chat{ID: 1}},
	}})
	if transport.edits[0].text != "Gewählt: A" {
		t.Fatalf("unexpected confirmation %q", transport.edits[0].text)
	}
}

func TestHandleUpdateRecoversPanics(t *testing.T) {
	b, transport, _ := newTestBot(t)

	_ = b.RegisterCommand("panic", func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error) {
		panic("kaboom")
	})

	ctx := context.Background()
	b.HandleUpdate(ctx, commandUpdate(1, 1, "/panic"))
	b.HandleUpdate(ctx, commandUpdate(2, 2, "/start"))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.Wait(waitCtx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.deliveries) != 1 || transport.deliveries[0].Text != config.DefaultLabels().Start {
		t.Fatalf("other updates should still be served, got %+v", transport.deliveries)
	}
}

func TestResumeStop(t *testing.T) {
	b, transport, _ := newTestBot(t)
	transport.queued = []tgbotapi.Update{commandUpdate(1, 1, "/start")}

	if b.Running() {
		t.Fatal("bot should not run before Resume")
	}
	b.Resume(context.Background())
	b.Resume(context.Background())
	if !b.Running() {
		t.Fatal("bot should run after Resume")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		transport.mu.Lock()
		n := len(transport.deliveries)
		transport.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queued update was not handled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.Stop()
	if b.Running() {
		t.Fatal("bot should not run after Stop")
	}
	b.Stop()

	b.Resume(context.Background())
	defer b.Stop()

	transport.mu.Lock()
	polls := transport.polls
	transport.mu.Unlock()
	// The second poll loop may not have started yet.
	if polls < 1 || polls > 2 {
		t.Fatalf("unexpected poll count %d", polls)
	}
}

func TestSyncCommands(t *testing.T) {
	b, transport, _ := newTestBot(t)
	_ = b.RegisterCommand("rate", func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error) {
		return reply.Text("x"), nil
	})

	if err := b.SyncCommands(context.Background()); err != nil {
		t.Fatalf("SyncCommands failed: %v", err)
	}
	if len(transport.synced) != 5 {
		t.Fatalf("expected 5 commands, got %+v", transport.synced)
	}
	if transport.synced[0].Name != "start" || transport.synced[4].Usage != "/rate" {
		t.Fatalf("unexpected synced commands %+v", transport.synced)
	}
}

type memStore struct{}

func (memStore) Record(ctx context.Context, userID int64, parameter, value string) error { return nil }
func (memStore) Get(ctx context.Context, userID int64) (settings.UserConfig, error) {
	return settings.UserConfig{}, nil
}
