package whisper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper.relay/internal/models"
	"whisper.relay/internal/store"
)

type recordingCourier struct {
	mu        sync.Mutex
	fail      error
	delivered []delivery
}

type delivery struct {
	to     Requester
	secret string
}

func (c *recordingCourier) DeliverSecret(ctx context.Context, to Requester, w *models.Whisper) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.delivered = append(c.delivered, delivery{to: to, secret: w.SecretText})
	return nil
}

func (c *recordingCourier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

// blockingStore never answers before its context expires.
type blockingStore struct {
	store.Store
}

func (blockingStore) Create(ctx context.Context, w *models.Whisper) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingStore) Get(ctx context.Context, id string) (*models.Whisper, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var alice = models.Author{ID: 1, Username: "alice", FirstName: "Alice"}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *recordingCourier) {
	t.Helper()
	st := store.NewMemoryStore()
	courier := &recordingCourier{}
	svc := NewService(st, courier, zerolog.Nop(), Options{})
	return svc, st, courier
}

func TestService_CreateStoresSealedWhisper(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, alice, "@Bob", "meet at noon")
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "bob", w.TargetHandle)

	got, err := st.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Sealed())
	assert.Nil(t, got.OpenedBy)
	assert.Equal(t, alice, got.Author)
	assert.Equal(t, "meet at noon", got.SecretText)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestService_CreateSameContentTwice(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, alice, "bob", "same")
	require.NoError(t, err)
	b, err := svc.Create(ctx, alice, "bob", "same")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestService_CreateRegeneratesCollidingID(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	ids := []string{"fixed", "fixed", "fresh"}
	svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := svc.Create(ctx, alice, "bob", "one")
	require.NoError(t, err)
	second, err := svc.Create(ctx, alice, "bob", "two")
	require.NoError(t, err)

	assert.Equal(t, "fixed", first.ID)
	assert.Equal(t, "fresh", second.ID)

	got, err := st.Get(ctx, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "one", got.SecretText)
}

func TestService_CreateRejectsEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), alice, "@", "text")
	assert.ErrorIs(t, err, ErrInvalidWhisper)

	_, err = svc.Create(context.Background(), alice, "bob", "")
	assert.ErrorIs(t, err, ErrInvalidWhisper)
}

func TestService_CreateStoreTimeout(t *testing.T) {
	svc := NewService(blockingStore{}, &recordingCourier{}, zerolog.Nop(), Options{StoreTimeout: 20 * time.Millisecond})

	_, err := svc.Create(context.Background(), alice, "bob", "text")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_RevealStoreTimeout(t *testing.T) {
	svc := NewService(blockingStore{}, &recordingCourier{}, zerolog.Nop(), Options{StoreTimeout: 20 * time.Millisecond})

	_, err := svc.Reveal(context.Background(), "id", Requester{ID: 2, Username: "bob"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestService_RevealUnknown(t *testing.T) {
	svc, _, courier := newTestService(t)

	res, err := svc.Reveal(context.Background(), "missing", Requester{ID: 2, Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Nil(t, res.Whisper)
	assert.Zero(t, courier.count())
}

func TestService_RevealForbidden(t *testing.T) {
	svc, st, courier := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, alice, "@Alice", "secret")
	require.NoError(t, err)

	for _, handle := range []string{"bob", "", "alicee", "@bob"} {
		res, err := svc.Reveal(ctx, w.ID, Requester{ID: 3, Username: handle})
		require.NoError(t, err)
		assert.Equal(t, OutcomeForbidden, res.Outcome, handle)
		assert.Equal(t, "alice", res.TargetHandle)
		assert.Nil(t, res.Whisper)
	}

	got, err := st.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Sealed())
	assert.Nil(t, got.OpenedBy)
	assert.Zero(t, courier.count())
}

func TestService_RevealCaseInsensitive(t *testing.T) {
	svc, _, courier := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, alice, "@Alice", "secret")
	require.NoError(t, err)

	res, err := svc.Reveal(ctx, w.ID, Requester{ID: 9, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevealed, res.Outcome)
	assert.Equal(t, "secret", res.Whisper.SecretText)
	assert.Equal(t, 1, courier.count())
}

func TestService_RevealUndeliverableKeepsSealed(t *testing.T) {
	svc, st, courier := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, alice, "bob", "secret")
	require.NoError(t, err)

	courier.fail = fmt.Errorf("%w: bot was blocked by the user", ErrNoPrivateChannel)
	res, err := svc.Reveal(ctx, w.ID, Requester{ID: 2, Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUndeliverable, res.Outcome)
	assert.ErrorIs(t, res.DeliveryErr, ErrNoPrivateChannel)
	assert.Nil(t, res.Whisper)

	got, err := st.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Sealed())

	// Once the DM channel works the same whisper can still be revealed.
	courier.fail = nil
	res, err = svc.Reveal(ctx, w.ID, Requester{ID: 2, Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevealed, res.Outcome)
	assert.True(t, res.FirstOpen)
}

func TestService_RevealTransientFailureKeepsSealed(t *testing.T) {
	for _, fail := range []error{
		context.DeadlineExceeded,
		errors.New("Too Many Requests: retry after 3"),
	} {
		svc, st, courier := newTestService(t)
		ctx := context.Background()

		w, err := svc.Create(ctx, alice, "bob", "secret")
		require.NoError(t, err)

		courier.fail = fail
		res, err := svc.Reveal(ctx, w.ID, Requester{ID: 2, Username: "bob"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeliveryFailed, res.Outcome, fail.Error())
		assert.ErrorIs(t, res.DeliveryErr, fail)
		assert.Nil(t, res.Whisper)

		got, err := st.Get(ctx, w.ID)
		require.NoError(t, err)
		assert.True(t, got.Sealed())
	}
}

func TestService_RevealScenario(t *testing.T) {
	svc, st, courier := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, alice, "@bob", "meet at noon")
	require.NoError(t, err)

	res, err := svc.Reveal(ctx, w.ID, Requester{ID: 3, Username: "carol"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbidden, res.Outcome)
	assert.Equal(t, "bob", res.TargetHandle)

	res, err = svc.Reveal(ctx, w.ID, Requester{ID: 2, Username: "Bob"})
	require.NoError(t, err)
	require.Equal(t, OutcomeRevealed, res.Outcome)
	assert.True(t, res.FirstOpen)
	assert.Equal(t, "meet at noon", res.Whisper.SecretText)
	assert.Equal(t, "alice", res.Whisper.Author.Username)

	opened, err := st.Get(ctx, w.ID)
	require.NoError(t, err)
	require.False(t, opened.Sealed())
	require.NotNil(t, opened.OpenedBy)
	assert.Equal(t, int64(2), *opened.OpenedBy)
	firstOpenedAt := *opened.OpenedAt

	res, err = svc.Reveal(ctx, w.ID, Requester{ID: 22, Username: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevealed, res.Outcome)
	assert.False(t, res.FirstOpen)
	assert.Equal(t, "meet at noon", res.Whisper.SecretText)

	again, err := st.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *again.OpenedBy)
	assert.True(t, firstOpenedAt.Equal(*again.OpenedAt))
	assert.Equal(t, 2, courier.count())
}

func TestService_ConcurrentReveal(t *testing.T) {
	svc, st, courier := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, alice, "bob", "race")
	require.NoError(t, err)

	const callers = 20
	results := make([]RevealResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Reveal(ctx, w.ID, Requester{ID: int64(100 + i), Username: "BOB"})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	var first []int64
	for i, res := range results {
		require.Equal(t, OutcomeRevealed, res.Outcome)
		assert.Equal(t, "race", res.Whisper.SecretText)
		if res.FirstOpen {
			first = append(first, int64(100+i))
		}
	}
	require.Len(t, first, 1)
	assert.Equal(t, callers, courier.count())

	got, err := st.Get(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OpenedBy)
	assert.Equal(t, first[0], *got.OpenedBy)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "not_found", OutcomeNotFound.String())
	assert.Equal(t, "forbidden", OutcomeForbidden.String())
	assert.Equal(t, "undeliverable", OutcomeUndeliverable.String())
	assert.Equal(t, "delivery_failed", OutcomeDeliveryFailed.String())
	assert.Equal(t, "revealed", OutcomeRevealed.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
