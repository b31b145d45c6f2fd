// Package ipc implements the point-to-point channel endpoint used by the
// imulink producer and consumer.
//
// The channel is a connection-oriented, message-preserving Unix domain
// socket (SOCK_SEQPACKET, network "unixpacket"): one Send is delivered as
// exactly one message to the peer, and a zero-length read means the peer
// has gone away.
//
// The consumer side binds and accepts exactly one peer:
//
//	ep, err := ipc.BindAndAccept(ctx, "/tmp/dummy_socket", ipc.Options{Logger: log})
//	if err != nil {
//	    return err // BIND or ACCEPT
//	}
//	defer ep.Close()
//
//	buf := make([]byte, ipc.DefaultReceiveBuffer)
//	for {
//	    out := ep.Receive(buf)
//	    switch out.Kind {
//	    case ipc.OutcomeMessage:
//	        // buf[:out.N] holds one message
//	    case ipc.OutcomeClosed:
//	        return nil
//	    case ipc.OutcomeTransient:
//	        // retry
//	    }
//	}
//
// The producer side connects and sends:
//
//	ep, err := ipc.Connect(ctx, "/tmp/dummy_socket", ipc.Options{Logger: log})
//	if err != nil {
//	    return err // CONNECT
//	}
//	defer ep.Close()
//	err = ep.Send(msg) // SEND on a broken peer, never retried here
//
// Endpoints are not safe for concurrent Send or Receive; each process owns
// its endpoint exclusively. Close is idempotent and may be called on a nil
// endpoint.
package ipc
