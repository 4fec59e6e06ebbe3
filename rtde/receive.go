package rtde

import (
	"time"

	"urdriver/shared"
	"urdriver/shared/event_bus"
)

// The receive loop runs on a dedicated goroutine per session, repeatedly
// decoding output frames into the shared snapshot at the controller's
// stream rate. No backpressure handling: the socket buffers at most a few
// frames and the loop always consumes the freshest.

func (s *Session) startReceiveLoop() {
	if s.receiveDone != nil {
		select {
		case <-s.receiveDone:
			// previous loop exited, start a fresh one
		default:
			return // already running
		}
	}
	s.stopReceive.Store(false)
	s.receiveDone = make(chan struct{})
	go s.receiveLoop(s.receiveDone)
}

func (s *Session) receiveLoop(done chan struct{}) {
	defer close(done)
	for !s.stopReceive.Load() {
		if err := s.ReceiveData(); err != nil {
			if s.stopReceive.Load() {
				return // cooperative stop closed the socket under us
			}
			shared.DebugError(err)
			s.setLastError(err)
			s.setState(shared.DISCONNECTED)
			if s.bus != nil {
				s.bus.PublishData(event_bus.EVENT_SESSION_LOST, err)
			}
			return
		}
	}
}

// stopReceiveLoop sets the cooperative stop flag and unblocks the reader by
// closing the socket, then waits briefly for the loop to exit.
func (s *Session) stopReceiveLoop() {
	if s.receiveDone == nil {
		return
	}
	s.stopReceive.Store(true)
	s.sendMu.Lock()
	if s.conn != nil {
		shared.SafeClose(s.conn)
		s.conn = nil
	}
	s.sendMu.Unlock()
	select {
	case <-s.receiveDone:
	case <-time.After(time.Second):
		shared.DebugPrint("receive loop did not stop within 1s")
	}
	s.receiveDone = nil
}
