// Package quictransport implements actions.Dispatcher over QUIC: one
// stream per dispatched action, framed with a 4-byte big-endian length
// prefix followed by a JSON payload — the same length-prefix framing
// idiom the teacher's event sender uses (frameAppend in
// core/replication/events/sender.go), carried over raw quic-go streams
// instead of an HTTP/3 POST body, since a single dispatched action has no
// use for request/response semantics.
package quictransport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/txnid"
)

const maxFrameBytes = 1 << 20

// wireMessage is what goes over a stream: the cell the action targets
// plus the action itself.
type wireMessage struct {
	CellTag txnid.CellTag  `json:"cell_tag"`
	Action  actions.Action `json:"action"`
}

// Client dispatches actions to a single remote cell reached at Addr.
// It implements actions.Dispatcher.
type Client struct {
	addr      string
	tlsConfig *tls.Config
	quicConf  *quic.Config
}

// NewClient builds a Client that dials addr for every Dispatch call. A
// fresh connection per dispatch keeps this simple and matches the
// coarse granularity of the mutation skeleton's per-attempt lifecycle;
// it is not meant to be a high-throughput transport.
func NewClient(addr string, tlsConfig *tls.Config) *Client {
	return &Client{addr: addr, tlsConfig: tlsConfig, quicConf: &quic.Config{}}
}

// Dispatch implements actions.Dispatcher.
func (c *Client) Dispatch(ctx context.Context, cellTag txnid.CellTag, action actions.Action) error {
	conn, err := quic.DialAddr(ctx, c.addr, c.tlsConfig, c.quicConf)
	if err != nil {
		return fmt.Errorf("quictransport: dial %s: %w", c.addr, err)
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("quictransport: open stream: %w", err)
	}
	defer stream.Close()

	if err := writeFrame(stream, wireMessage{CellTag: cellTag, Action: action}); err != nil {
		return fmt.Errorf("quictransport: write: %w", err)
	}
	return nil
}

// Server accepts action streams on behalf of a single local cell and
// forwards each decoded action to Local.
type Server struct {
	Local actions.Dispatcher
}

// Serve accepts connections on ln until ctx is canceled, handling each
// accepted stream's single framed message and forwarding it to s.Local.
func (s *Server) Serve(ctx context.Context, ln *quic.Listener) error {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("quictransport: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn *quic.Conn) {
	defer conn.CloseWithError(0, "")
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.handleStream(ctx, stream)
	}
}

func (s *Server) handleStream(ctx context.Context, stream *quic.Stream) {
	defer stream.Close()
	msg, err := readFrame(stream)
	if err != nil {
		return
	}
	_ = s.Local.Dispatch(ctx, msg.CellTag, msg.Action)
}

// Listen opens a QUIC listener on addr with the given TLS config, to be
// handed to Server.Serve.
func Listen(addr string, tlsConfig *tls.Config) (*quic.Listener, error) {
	ln, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{})
	if err != nil {
		return nil, fmt.Errorf("quictransport: listen %s: %w", addr, err)
	}
	return ln, nil
}

func writeFrame(w io.Writer, msg wireMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readFrame(r io.Reader) (wireMessage, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return wireMessage{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameBytes {
		return wireMessage{}, fmt.Errorf("quictransport: frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return wireMessage{}, err
	}
	var msg wireMessage
	if err := json.Unmarshal(buf, &msg); err != nil {
		return wireMessage{}, err
	}
	return msg, nil
}
