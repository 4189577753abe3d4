package chatserver

import (
	"io"
	"net"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/config"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 10 * time.Millisecond
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	if mutate != nil {
		mutate(cfg)
	}

	s := NewServer(cfg)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s
}

func dialTestServer(t *testing.T, s *Server) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sortedIDs(r *Registry) []ConnID {
	ids := r.IDs()
	slices.Sort(ids)
	return ids
}

// transcriptText joins all entries so assertions do not depend on how the
// network split the inbound bytes into reads.
func transcriptText(r *Registry, id ConnID) string {
	history, ok := r.History(id)
	if !ok {
		return ""
	}
	return strings.Join(history, "")
}

func TestStartAndStop(t *testing.T) {
	s := newTestServer(t, nil)

	assert.True(t, s.IsRunning())
	require.NotNil(t, s.Addr())

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	// Stop is idempotent.
	require.NoError(t, s.Stop())
}

func TestStartTwice(t *testing.T) {
	s := newTestServer(t, nil)
	require.Error(t, s.Start())
}

func TestBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := config.DefaultConfig()
	cfg.ListenAddr = taken.Addr().String()

	s := NewServer(cfg)
	err = s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.False(t, s.IsRunning())

	// Once the address frees up, the same server may try again.
	taken.Close()
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
}

func TestConnectionIDsAreSequential(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	for i := 1; i <= 3; i++ {
		dialTestServer(t, s)
		want := i
		require.Eventually(t, func() bool { return reg.Count() == want }, waitTimeout, waitTick)
	}

	assert.Equal(t, []ConnID{1, 2, 3}, sortedIDs(reg))
	assert.Len(t, reg.IDs(), reg.Count())
}

func TestConcurrentClientsGetDistinctIDs(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	const clients = 8
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", s.Addr().String())
			if err != nil {
				return
			}
			t.Cleanup(func() { conn.Close() })
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return reg.Count() == clients }, waitTimeout, waitTick)

	want := make([]ConnID, clients)
	for i := range want {
		want[i] = ConnID(i + 1)
	}
	assert.Equal(t, want, sortedIDs(reg))
}

func TestConnectionIDsNeverReused(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	first := dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)
	assert.Equal(t, []ConnID{1}, sortedIDs(reg))

	first.Close()
	require.Eventually(t, func() bool { return reg.Count() == 0 }, waitTimeout, waitTick)

	dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)
	assert.Equal(t, []ConnID{2}, sortedIDs(reg))
}

func TestConversationRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	client := dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)
	id := reg.IDs()[0]

	_, err := client.Write([]byte("hi"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return transcriptText(reg, id) == "hi" }, waitTimeout, waitTick)

	require.NoError(t, reg.Send(id, "hello"))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(waitTimeout)))
	buf := make([]byte, len("hello"))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	assert.Equal(t, "hihello", transcriptText(reg, id))

	_, err = client.Write([]byte("how are you"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return transcriptText(reg, id) == "hihellohow are you"
	}, waitTimeout, waitTick)
}

func TestLargePayloadSplitsIntoChunks(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	client := dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)
	id := reg.IDs()[0]

	payload := strings.Repeat("a", 1300)
	_, err := client.Write([]byte(payload))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(transcriptText(reg, id)) == len(payload)
	}, waitTimeout, waitTick)

	assert.Equal(t, payload, transcriptText(reg, id))

	// 1300 bytes cannot fit a single 512-byte read.
	history, ok := reg.History(id)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(history), 3)
}

func TestTrailingNulBytesTrimmed(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	client := dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)
	id := reg.IDs()[0]

	_, err := client.Write([]byte("abc\x00\x00"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return transcriptText(reg, id) == "abc" }, waitTimeout, waitTick)
}

func TestInvalidUTF8ChunkDropped(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	client := dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)
	id := reg.IDs()[0]

	_, err := client.Write([]byte{0xff, 0xfe, 0xfd})
	require.NoError(t, err)

	// Give the read pump time to consume the bad chunk before the good one
	// arrives, so the two cannot coalesce into a single read.
	time.Sleep(300 * time.Millisecond)

	_, err = client.Write([]byte("ok"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return transcriptText(reg, id) == "ok" }, waitTimeout, waitTick)
	assert.Equal(t, 1, reg.Count())
}

func TestPeerDisconnectRemovesConnection(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	client := dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)
	id := reg.IDs()[0]

	client.Close()
	require.Eventually(t, func() bool { return reg.Count() == 0 }, waitTimeout, waitTick)

	_, ok := reg.History(id)
	assert.False(t, ok)
	require.ErrorIs(t, reg.Send(id, "hello"), ErrUnknownConnection)
}

func TestSendToUnknownConnection(t *testing.T) {
	s := newTestServer(t, nil)
	require.ErrorIs(t, s.Registry().Send(999, "hello"), ErrUnknownConnection)
}

func TestStopClosesPeers(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.Registry()

	client := dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, reg.Count())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(waitTimeout)))
	buf := make([]byte, 1)
	_, err := client.Read(buf)
	require.Error(t, err)
}

// Peers that never close their end must not keep Stop from returning: every
// connection registered before shutdown is force-closed, and one the accept
// loop admits mid-shutdown is closed at the registry instead of leaking.
func TestStopRacesConcurrentDials(t *testing.T) {
	s := newTestServer(t, nil)
	addr := s.Addr().String()
	reg := s.Registry()

	stopDialing := make(chan struct{})
	var dialers sync.WaitGroup
	var peers struct {
		mu    sync.Mutex
		conns []net.Conn
	}
	for i := 0; i < 4; i++ {
		dialers.Add(1)
		go func() {
			defer dialers.Done()
			for {
				select {
				case <-stopDialing:
					return
				default:
				}
				conn, err := net.Dial("tcp", addr)
				if err != nil {
					return
				}
				peers.mu.Lock()
				peers.conns = append(peers.conns, conn)
				peers.mu.Unlock()
			}
		}()
	}

	require.Eventually(t, func() bool { return reg.Count() > 0 }, waitTimeout, waitTick)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not return while peers held their connections open")
	}

	assert.Equal(t, 0, reg.Count())

	close(stopDialing)
	dialers.Wait()
	peers.mu.Lock()
	for _, conn := range peers.conns {
		conn.Close()
	}
	peers.mu.Unlock()
}

func TestMaxConnectionsHoldsExtraPeers(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.MaxConnections = 1
	})
	reg := s.Registry()

	first := dialTestServer(t, s)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, waitTimeout, waitTick)

	// The second dial completes at the TCP level but is not accepted until
	// the first peer goes away.
	dialTestServer(t, s)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, []ConnID{1}, sortedIDs(reg))

	first.Close()
	require.Eventually(t, func() bool {
		return slices.Contains(reg.IDs(), ConnID(2))
	}, waitTimeout, waitTick)
	assert.Equal(t, 1, reg.Count())
}
