package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSocket feeds a fixed set of datagrams to a RecvWorker, then
// reports would-block forever.
type scriptedSocket struct {
	mu    sync.Mutex
	queue []Datagram
}

func (s *scriptedSocket) SendDatagram(data []byte, to net.Addr) error { return nil }

func (s *scriptedSocket) RecvDatagram(buf []byte) (int, net.Addr, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		// Stand in for the poll-timeout sleep of a real socket.
		time.Sleep(time.Millisecond)
		return 0, nil, false, nil
	}
	d := s.queue[0]
	s.queue = s.queue[1:]
	n := copy(buf, d.Data)
	return n, d.From, true, nil
}

func (s *scriptedSocket) LocalAddr() net.Addr { return memAddr("mem:scripted") }
func (s *scriptedSocket) Close() error        { return nil }

// TestWorkerDeliversInOrder tests that queued datagrams come out in
// arrival order.
func TestWorkerDeliversInOrder(t *testing.T) {
	sock := &scriptedSocket{}
	for i := byte(0); i < 5; i++ {
		sock.queue = append(sock.queue, Datagram{Data: []byte{i}, From: memAddr("mem:x")})
	}

	w := NewRecvWorker(sock, 16)
	w.Start()
	defer w.Stop()

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 5 && time.Now().Before(deadline) {
		if d, ok := w.Pop(); ok {
			got = append(got, d.Data[0])
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	assert.Equal(t, []byte{0, 1, 2, 3, 4}, got)
}

// TestWorkerRingOverflowDropsAndCounts tests the bounded-queue policy:
// a full ring drops new datagrams and counts them without corrupting
// the queued ones.
func TestWorkerRingOverflowDropsAndCounts(t *testing.T) {
	w := NewRecvWorker(&scriptedSocket{}, 2)

	w.push(Datagram{Data: []byte{1}})
	w.push(Datagram{Data: []byte{2}})
	w.push(Datagram{Data: []byte{3}}) // dropped

	assert.Equal(t, uint64(1), w.Dropped())

	d, ok := w.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte{1}, d.Data)
	d, ok = w.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, d.Data)
	_, ok = w.Pop()
	assert.False(t, ok)

	// Space freed; pushes work again.
	w.push(Datagram{Data: []byte{4}})
	d, ok = w.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte{4}, d.Data)
}

// TestWorkerStopJoins tests that Stop returns even when the socket is
// quiet, relying on the bounded poll sleep.
func TestWorkerStopJoins(t *testing.T) {
	w := NewRecvWorker(&scriptedSocket{}, 4)
	w.Start()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not join the worker")
	}
}

// TestWorkerFeedsTransport tests the offload model end to end: worker
// drains the socket, the application thread processes.
func TestWorkerFeedsTransport(t *testing.T) {
	reg := testRegistry()
	sockA, sockB := newMemSocketPair()
	a := New(sockA, sockB.addr, reg)
	b := New(sockB, sockA.addr, reg)

	require.NoError(t, a.Send(1, []byte("through the worker")))

	w := NewRecvWorker(sockB, 16)
	w.Start()
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d, ok := w.Pop()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		msg, err := b.ProcessDatagram(d.Data, d.From)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, []byte("through the worker"), msg.Data)
		return
	}
	t.Fatal("datagram never arrived through the worker")
}
