package rwsplit

import (
	"hash/crc32"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestReplayAcrossMasterFailover covers §8 scenario 5: inside
// "BEGIN; UPDATE t SET x=x+1 WHERE id=1;" the master dies; replay against a
// new master must reproduce identical checksums and the caller only sees
// the final reply.
func TestReplayAcrossMasterFailover(t *testing.T) {
	oldMaster := NewBackend("old-master", RoleMaster, 0)
	trx := &Trx{Target: oldMaster}

	begin := []byte("BEGIN")
	update := []byte("UPDATE t SET x=x+1 WHERE id=1")
	beginReply := []byte{0x00, 0x01}
	updateReply := []byte{0x00, 0x02}
	trx.AddStmt(begin, crc32.ChecksumIEEE(beginReply))
	trx.AddStmt(update, crc32.ChecksumIEEE(updateReply))

	newMaster := NewBackend("new-master", RoleMaster, 0)
	replay := NewReplay(trx, newMaster, nil, 0, 3, 5*time.Second, false)

	var sent [][]byte
	replies := map[string][]byte{
		string(begin):  beginReply,
		string(update): updateReply,
	}
	send := func(buf []byte) ([]byte, error) {
		sent = append(sent, buf)
		return replies[string(buf)], nil
	}

	done, remainder, err := replay.Step(send)
	require.NoError(t, err)
	require.True(t, done)
	require.Nil(t, remainder)
	require.Equal(t, [][]byte{begin, update}, sent)
	require.Same(t, newMaster, replay.Target())
}

// TestReplayTrimsAlreadySeenResultBytes covers §4.9 step 4: a session
// interrupted partway through the interrupted query's result set must not
// receive the leading bytes it already saw from the original backend.
func TestReplayTrimsAlreadySeenResultBytes(t *testing.T) {
	trx := &Trx{}
	interrupted := []byte("SELECT * FROM big_table")
	fullReply := []byte("0123456789")
	replay := NewReplay(trx, NewBackend("new", RoleMaster, 0), interrupted, 4, 3, time.Second, false)

	done, remainder, err := replay.Step(func(buf []byte) ([]byte, error) {
		require.Equal(t, interrupted, buf)
		return fullReply, nil
	})
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, []byte("456789"), remainder)
}

// TestReplayChecksumMismatchFailsSession covers the non-restart branch of
// §4.9 step 3: a checksum mismatch with trx_retry_on_mismatch off returns
// 1792.
func TestReplayChecksumMismatchFailsSession(t *testing.T) {
	trx := &Trx{}
	trx.AddStmt([]byte("SELECT 1"), crc32.ChecksumIEEE([]byte("expected")))
	newTarget := NewBackend("new", RoleMaster, 0)
	replay := NewReplay(trx, newTarget, nil, 0, 3, time.Second, false)

	send := func(buf []byte) ([]byte, error) { return []byte("different"), nil }
	done, _, err := replay.Step(send)
	require.False(t, done)
	require.Error(t, err)
	re, ok := err.(*RouteError)
	require.True(t, ok)
	require.NotNil(t, re.MySQL)
	require.EqualValues(t, 1792, re.MySQL.Code)
}

// TestReplayRestartsOnMismatchWhenConfigured shows the restart-on-mismatch
// path puts the statement back for another attempt instead of failing.
func TestReplayRestartsOnMismatchWhenConfigured(t *testing.T) {
	correctReply := []byte("correct")
	trx := &Trx{}
	trx.AddStmt([]byte("SELECT 1"), crc32.ChecksumIEEE(correctReply))
	replay := NewReplay(trx, NewBackend("new", RoleMaster, 0), nil, 0, 5, time.Second, true)

	attempt := 0
	send := func(buf []byte) ([]byte, error) {
		attempt++
		if attempt == 1 {
			return []byte("wrong"), nil // mismatch: triggers restart
		}
		return correctReply, nil
	}

	done, _, err := replay.Step(send)
	require.NoError(t, err)
	require.False(t, done) // first Step restarts, doesn't finish

	done, _, err = replay.Step(send)
	require.NoError(t, err)
	require.True(t, done)
}

func TestReplayExceedsMaxAttempts(t *testing.T) {
	trx := &Trx{}
	trx.AddStmt([]byte("SELECT 1"), 1)
	replay := NewReplay(trx, NewBackend("new", RoleMaster, 0), nil, 0, 1, time.Second, false)
	replay.attempts = 1 // simulate one prior failed attempt already consumed

	_, _, err := replay.Step(func(buf []byte) ([]byte, error) { return []byte{1}, nil })
	require.Error(t, err)
	re, ok := err.(*RouteError)
	require.True(t, ok)
	require.EqualValues(t, 1792, re.MySQL.Code)
}

func TestUnreplayableFlagsOversizedTransaction(t *testing.T) {
	trx := &Trx{Size: 200}
	require.True(t, Unreplayable(trx, 100, 0))
	require.True(t, trx.Unreplayable)

	small := &Trx{Size: 10}
	require.False(t, Unreplayable(small, 100, 0))
}

func TestUnreplayableFlagsTooManyStatements(t *testing.T) {
	trx := &Trx{}
	for i := 0; i < 5; i++ {
		trx.AddStmt([]byte("x"), uint32(i))
	}
	require.True(t, Unreplayable(trx, 1<<30, 3))
	require.False(t, Unreplayable(&Trx{}, 1<<30, 3))
}

func TestShouldReplayDecisionTable(t *testing.T) {
	trx := &Trx{}
	ok, trig := ShouldReplay(trx, true, false, false, false, false, false)
	require.True(t, ok)
	require.Equal(t, ReplayTargetDisconnected, trig)

	ok, _ = ShouldReplay(trx, false, false, true, false, false, false)
	require.False(t, ok) // ignorable rollback but retry_on_deadlock off

	ok, trig = ShouldReplay(trx, false, false, true, true, false, false)
	require.True(t, ok)
	require.Equal(t, ReplayIgnorableRollback, trig)

	unreplayable := &Trx{Unreplayable: true}
	ok, _ = ShouldReplay(unreplayable, true, false, false, false, false, false)
	require.False(t, ok)
}
