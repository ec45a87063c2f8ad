// Package transport implements reliable messaging over unreliable
// datagrams.
//
// A Transport manages one conversation with a single remote peer. Every
// outgoing packet carries a sequence number, an acknowledgement of the
// most recent packet seen from the peer plus a 32-bit bitmask covering
// the 32 packets before it, and as many pending reliable messages as
// fit. There are no dedicated retransmission packets: anything still
// unacknowledged simply rides along on the next packet sent, so
// reliable delivery costs nothing extra on a healthy link.
//
// Example:
//
//	registry := transport.NewRegistry()
//	registry.Register(1, transport.RawBytesCodec(256))
//
//	socket, err := transport.NewUDPSocket(":0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	t := transport.New(socket, peerAddr, registry)
//	t.SendReliable(1, []byte("hello"))
//
// A Transport serializes all methods on an internal mutex, but the
// caller must still drive send and receive from a coherent schedule
// (see RecvWorker for the worker-thread offload model).
package transport
