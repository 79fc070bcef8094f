package virtual

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Wire size of one serialized frame : id(4) + flags(1) + dlc(1) + data(8)
const frameWireSize = 14

// Server is the virtual CAN broker. Every frame received from a client is
// fanned out to all other connected clients, which models a shared CAN
// medium without echo. Slow clients drop frames rather than stall the
// bus.
type Server struct {
	mu       sync.Mutex
	listener net.Listener
	clients  map[*serverClient]struct{}
	closed   bool
	wg       sync.WaitGroup
}

type serverClient struct {
	conn net.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *serverClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// NewServer starts a broker listening on the given TCP address.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{listener: listener, clients: make(map[*serverClient]struct{})}
	s.wg.Add(1)
	go s.acceptLoop()
	log.Infof("[VIRTUAL] broker listening on %v", listener.Addr())
	return s, nil
}

// Addr returns the broker's listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops the broker and disconnects all clients.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	err := s.listener.Close()
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				log.Errorf("[VIRTUAL] accept failed : %v", err)
			}
			return
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		s.addClient(conn)
	}
}

func (s *Server) addClient(conn net.Conn) {
	client := &serverClient{conn: conn, out: make(chan []byte, 64), done: make(chan struct{})}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()
	brokerActiveClients.Set(float64(count))
	log.Debugf("[VIRTUAL] client connected from %v, %d total", conn.RemoteAddr(), count)

	s.wg.Add(2)
	go s.readLoop(client)
	go s.writeLoop(client)
}

func (s *Server) removeClient(client *serverClient) {
	s.mu.Lock()
	_, existed := s.clients[client]
	delete(s.clients, client)
	count := len(s.clients)
	s.mu.Unlock()
	client.close()
	if existed {
		brokerActiveClients.Set(float64(count))
		log.Debugf("[VIRTUAL] client disconnected, %d remaining", count)
	}
}

// readLoop decodes length-prefixed frames from one client and broadcasts
// them to everyone else.
func (s *Server) readLoop(client *serverClient) {
	defer s.wg.Done()
	defer s.removeClient(client)

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(client.conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint32(header)
		if length != frameWireSize {
			brokerMalformedFrames.Inc()
			log.Warnf("[VIRTUAL] malformed frame, length %d", length)
			return
		}
		payload := make([]byte, 4+length)
		copy(payload, header)
		if _, err := io.ReadFull(client.conn, payload[4:]); err != nil {
			return
		}
		brokerRxFrames.Inc()
		s.broadcast(client, payload)
	}
}

// broadcast fans a serialized frame out to all clients except the sender.
func (s *Server) broadcast(from *serverClient, payload []byte) {
	s.mu.Lock()
	targets := make([]*serverClient, 0, len(s.clients))
	for c := range s.clients {
		if c != from {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		select {
		case c.out <- payload:
			brokerTxFrames.Inc()
		default:
			brokerDroppedFrames.Inc()
		}
	}
}

func (s *Server) writeLoop(client *serverClient) {
	defer s.wg.Done()
	for {
		select {
		case <-client.done:
			return
		case payload := <-client.out:
			if _, err := client.conn.Write(payload); err != nil {
				client.close()
				return
			}
		}
	}
}
