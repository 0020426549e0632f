package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"lobengine/internal/event"
	"lobengine/internal/matching"
	"lobengine/internal/order"
	"lobengine/internal/workerpool"
)

const (
	maxRecvSize        = 4 * 1024
	defaultConnTimeout = 30 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// clientSession tracks one connected TCP client.
type clientSession struct {
	conn net.Conn
}

// clientMessage links a decoded request to the client address it came from.
type clientMessage struct {
	clientAddress string
	request       Request
}

// Server exposes a single matching.OrderBook to remote clients over a
// binary TCP protocol: NEW_ORDER and CANCEL_ORDER requests in, Event
// reports out.
type Server struct {
	addr string
	book *matching.OrderBook
	pool *workerpool.Pool

	cancel context.CancelFunc

	sessionsLock sync.Mutex
	sessions     map[string]clientSession

	messages chan clientMessage
}

// New constructs a server for book, listening on addr (host:port) with
// workers concurrent connection handlers.
func New(addr string, book *matching.OrderBook, workers int) *Server {
	return &Server{
		addr:     addr,
		book:     book,
		pool:     workerpool.New(workers),
		sessions: make(map[string]clientSession),
		messages: make(chan clientMessage, 1),
	}
}

// Shutdown cancels the server's run context, stopping the accept loop and
// every in-flight connection handler.
func (s *Server) Shutdown() {
	log.Info().Msg("transport server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run blocks, accepting connections until ctx is canceled or a fatal error
// occurs. Each accepted connection is handed to the worker pool.
func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("unable to start listener: %w", err)
	}
	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	s.pool.Start(t)

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("addr", listener.Addr().String()).Msg("transport server running")

	for {
		select {
		case <-ctx.Done():
			return t.Wait()
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return t.Wait()
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().Str("address", conn.RemoteAddr().String()).Msg("client connected")
			s.addSession(conn)
			s.pool.Submit(s.handleConnection(conn))
		}
	}
}

// sessionHandler drains decoded requests and dispatches them against the
// book, one at a time, preserving the single-writer-per-book discipline at
// the transport boundary.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.messages:
			s.handleRequest(msg)
		}
	}
}

func (s *Server) handleRequest(msg clientMessage) {
	switch msg.request.Type {
	case MsgNewOrder:
		o := newOrderFromWire(msg.request.New)
		events := s.book.AddOrder(o)
		s.sendEvents(msg.clientAddress, events)
	case MsgCancelOrder:
		events := s.book.CancelOrder(msg.request.Cancel.OrderID)
		s.sendEvents(msg.clientAddress, events)
	case MsgHeartbeat:
		// no book interaction; connection liveness only
	default:
		log.Error().Int("type", int(msg.request.Type)).Msg("unhandled request type")
	}
}

func (s *Server) sendEvents(clientAddress string, events []event.Event) {
	s.sessionsLock.Lock()
	session, ok := s.sessions[clientAddress]
	s.sessionsLock.Unlock()
	if !ok {
		return
	}

	for _, e := range events {
		if _, err := session.conn.Write(EncodeEvent(e)); err != nil {
			log.Error().Err(err).Str("address", clientAddress).Msg("unable to send event report")
			s.deleteSession(clientAddress)
			return
		}
	}
}

// handleConnection returns a workerpool.Task reading exactly one request
// off conn, forwarding it to sessionHandler, and re-queuing itself to read
// the next one. Mirrors the teacher's self-requeuing connection worker.
// The connection is closed only when a task ends without re-queuing.
func (s *Server) handleConnection(conn net.Conn) workerpool.Task {
	return func(t *tomb.Tomb) error {
		requeued := false
		defer func() {
			if requeued {
				return
			}
			if err := conn.Close(); err != nil {
				log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("error closing connection")
			}
		}()

		if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
			log.Error().Err(err).Msg("failed setting connection deadline")
			return nil
		}

		select {
		case <-t.Dying():
			return nil
		default:
		}

		buffer := make([]byte, maxRecvSize)
		n, err := conn.Read(buffer)
		if err != nil {
			s.deleteSession(conn.RemoteAddr().String())
			return nil
		}

		req, err := DecodeRequest(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error parsing request")
			s.deleteSession(conn.RemoteAddr().String())
			return nil
		}

		s.messages <- clientMessage{clientAddress: conn.RemoteAddr().String(), request: req}

		requeued = true
		s.pool.Submit(s.handleConnection(conn))
		return nil
	}
}

// newOrderFromWire converts a decoded NewOrderRequest into the core Order
// type, translating the request's raw float64 price/quantity into decimals.
// A client that supplies no OrderID gets one minted server-side, exactly as
// the teacher's messages.go does for every inbound NewOrder.
func newOrderFromWire(req NewOrderRequest) *order.Order {
	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.New().String()
	}

	o := &order.Order{
		OrderID:     orderID,
		ClientID:    req.ClientID,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    decimal.NewFromFloat(req.Quantity),
		Remaining:   decimal.NewFromFloat(req.Quantity),
		TimeInForce: req.TimeInForce,
		Flags:       req.Flags,
		Timestamp:   req.Timestamp,
	}
	if o.Type == order.Limit {
		o.Price = decimal.NewFromFloat(req.Price)
		o.HasPrice = true
	}
	return o
}

func (s *Server) addSession(conn net.Conn) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	s.sessions[conn.RemoteAddr().String()] = clientSession{conn: conn}
}

func (s *Server) deleteSession(address string) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	delete(s.sessions, address)
}
