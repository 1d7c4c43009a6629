package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/allocation"
	"github.com/aniket1251/opd-token-allocation-engine/internal/capacity"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/doctor"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
)

// fakeTx is an in-memory storage.Tx sufficient to exercise allocation's
// placement logic without a Postgres instance — the teacher itself ships
// no database-backed tests for its equivalent services (internal/orders,
// internal/ledger), so there is no precedent for a fake SQL layer either;
// this hand-rolled map stands in only for the methods allocation actually
// calls.
type fakeTx struct {
	slots  map[uuid.UUID]*slot.Slot
	tokens map[uuid.UUID]*token.Token
}

func newFakeTx() *fakeTx {
	return &fakeTx{slots: map[uuid.UUID]*slot.Slot{}, tokens: map[uuid.UUID]*token.Token{}}
}

func (f *fakeTx) GetDoctor(ctx context.Context, doctorID uuid.UUID) (*doctor.Doctor, error) {
	return nil, nil
}
func (f *fakeTx) GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*slot.Slot, error) {
	return f.slots[slotID], nil
}

func (f *fakeTx) ListActiveSlotsForDoctorDate(ctx context.Context, doctorID uuid.UUID, date civildate.Date) ([]*slot.Slot, error) {
	var out []*slot.Slot
	for _, s := range f.slots {
		if s.DoctorID == doctorID && s.Date == date && s.IsActive {
			out = append(out, s)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartTime.Before(out[i].StartTime) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeTx) UpdateSlot(ctx context.Context, s *slot.Slot) error {
	f.slots[s.ID] = s
	return nil
}

func (f *fakeTx) ListAllocatedTokensForSlot(ctx context.Context, slotID uuid.UUID) ([]*token.Token, error) {
	var out []*token.Token
	for _, t := range f.tokens {
		if sid, ok := t.SlotID(); ok && sid == slotID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTx) ListWaitingTokensForDoctorDate(ctx context.Context, doctorID uuid.UUID, date civildate.Date) ([]*token.Token, error) {
	var out []*token.Token
	for _, t := range f.tokens {
		if t.DoctorID == doctorID && t.Date == date && t.Status.Kind() == token.KindWaiting {
			out = append(out, t)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeTx) GetTokenByIdempotencyKey(ctx context.Context, key string) (*token.Token, error) {
	return nil, nil
}
func (f *fakeTx) GetToken(ctx context.Context, tokenID uuid.UUID) (*token.Token, error) {
	return f.tokens[tokenID], nil
}
func (f *fakeTx) InsertToken(ctx context.Context, t *token.Token) error {
	f.tokens[t.ID] = t
	return nil
}
func (f *fakeTx) UpdateToken(ctx context.Context, t *token.Token) error {
	f.tokens[t.ID] = t
	return nil
}
func (f *fakeTx) NextSequence(ctx context.Context, kind string, scopeKey string) (int64, error) {
	return 1, nil
}
func (f *fakeTx) Commit() error   { return nil }
func (f *fakeTx) Rollback() error { return nil }

func (f *fakeTx) addSlot(s *slot.Slot) { f.slots[s.ID] = s }
func (f *fakeTx) addToken(t *token.Token) {
	f.tokens[t.ID] = t
}

var testDate = mustDate()

func mustDate() civildate.Date {
	d, err := civildate.ParseDate("05-03-2026")
	if err != nil {
		panic(err)
	}
	return d
}

func mustClockTime(hhmm string) civildate.ClockTime {
	ct, err := civildate.ParseClockTime(hhmm)
	if err != nil {
		panic(err)
	}
	return ct
}

func newSlot(doctorID uuid.UUID, start, end string, cap int, paidCap, followUpCap capacity.Cap) *slot.Slot {
	return &slot.Slot{
		ID: uuid.New(), DoctorID: doctorID, Date: testDate,
		StartTime: mustClockTime(start), EndTime: mustClockTime(end),
		Capacity: cap, PaidCap: paidCap, FollowUpCap: followUpCap, IsActive: true,
	}
}

func newWaitingToken(doctorID uuid.UUID, p priority.Priority, src token.Source, createdAt time.Time) *token.Token {
	return &token.Token{
		ID: uuid.New(), DoctorID: doctorID, Date: testDate,
		Priority: p, Source: src, Status: token.Waiting(), CreatedAt: createdAt,
	}
}

func allocatedToken(doctorID, slotID uuid.UUID, p priority.Priority, createdAt time.Time) *token.Token {
	return &token.Token{
		ID: uuid.New(), DoctorID: doctorID, Date: testDate,
		Priority: p, Source: token.Walkin, Status: token.Allocated(slotID, createdAt), CreatedAt: createdAt,
	}
}

// S1 — displacement with no second seat available.
func TestAllocateS1DisplacesLowestPriorityWithNoOtherSlot(t *testing.T) {
	tx := newFakeTx()
	doctorID := uuid.New()
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	clk := clock.Fixed{At: time.Date(2026, 3, 5, 8, 30, 0, 0, time.UTC)}

	s := newSlot(doctorID, "09:00", "10:00", 2, capacity.Unlimited(), capacity.Unlimited())
	tx.addSlot(s)

	t1 := allocatedToken(doctorID, s.ID, priority.Walkin, base)
	t2 := allocatedToken(doctorID, s.ID, priority.Online, base.Add(time.Minute))
	tx.addToken(t1)
	tx.addToken(t2)

	t3 := newWaitingToken(doctorID, priority.Emergency, token.Walkin, base.Add(2*time.Minute))
	tx.addToken(t3)

	result, err := allocation.Allocate(context.Background(), tx, clk, time.UTC, doctorID, testDate, t3)
	require.NoError(t, err)
	assert.True(t, result.Allocated)
	assert.Equal(t, s.ID, result.Slot.ID)
	require.Len(t, result.Displaced, 1)
	assert.Equal(t, t1.ID, result.Displaced[0].ID)
	assert.Equal(t, token.KindWaiting, t1.Status.Kind())
}

// S2 — displaced victim finds a seat in a second, non-full slot.
func TestAllocateS2DisplacedVictimRePlacedInLaterSlot(t *testing.T) {
	tx := newFakeTx()
	doctorID := uuid.New()
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	clk := clock.Fixed{At: time.Date(2026, 3, 5, 8, 30, 0, 0, time.UTC)}

	s1 := newSlot(doctorID, "09:00", "10:00", 2, capacity.Unlimited(), capacity.Unlimited())
	s2 := newSlot(doctorID, "10:00", "11:00", 3, capacity.Unlimited(), capacity.Unlimited())
	tx.addSlot(s1)
	tx.addSlot(s2)

	walkin := allocatedToken(doctorID, s1.ID, priority.Walkin, base)
	online1 := allocatedToken(doctorID, s1.ID, priority.Online, base.Add(time.Minute))
	tx.addToken(walkin)
	tx.addToken(online1)

	online2 := allocatedToken(doctorID, s2.ID, priority.Online, base)
	paid := allocatedToken(doctorID, s2.ID, priority.Paid, base)
	tx.addToken(online2)
	tx.addToken(paid)

	emergency := newWaitingToken(doctorID, priority.Emergency, token.Walkin, base.Add(5*time.Minute))
	tx.addToken(emergency)

	result, err := allocation.Allocate(context.Background(), tx, clk, time.UTC, doctorID, testDate, emergency)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, result.Slot.ID)
	require.Len(t, result.Displaced, 1)
	assert.Equal(t, walkin.ID, result.Displaced[0].ID)

	sid, ok := walkin.SlotID()
	require.True(t, ok, "walkin should have been re-placed into s2, not left WAITING")
	assert.Equal(t, s2.ID, sid)
}

// S5 — paid cap denies the 4th PAID admission even with free seats.
func TestAllocateS5PaidCapDeniesAdmissionDespiteFreeSeats(t *testing.T) {
	tx := newFakeTx()
	doctorID := uuid.New()
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	clk := clock.Fixed{At: base}

	s := newSlot(doctorID, "09:00", "10:00", 6, capacity.Limit(3), capacity.Unlimited())
	tx.addSlot(s)

	for i := 0; i < 3; i++ {
		tx.addToken(allocatedToken(doctorID, s.ID, priority.Paid, base.Add(time.Duration(i)*time.Minute)))
	}

	fourth := newWaitingToken(doctorID, priority.Paid, token.Online, base.Add(10*time.Minute))
	tx.addToken(fourth)

	result, err := allocation.Allocate(context.Background(), tx, clk, time.UTC, doctorID, testDate, fourth)
	require.NoError(t, err)
	assert.False(t, result.Allocated)
	assert.Nil(t, result.Slot)
	assert.Equal(t, token.KindWaiting, fourth.Status.Kind())
}
