package service

import (
	"github.com/nanoim/botcore/internal/auth"
	"github.com/nanoim/botcore/internal/packet"
)

// AliveRequest is the heartbeat probe. The body is a fixed four-byte
// marker; the reply confirms the session is still registered.
type AliveRequest struct{}

// AliveResponse carries nothing; arrival is the signal.
type AliveResponse struct{}

func init() {
	Register("Heartbeat.Alive",
		packet.ProtocolService, packet.EncryptD2Key, auth.ProtocolAll, true,
		func(AliveRequest, Context) ([]byte, error) {
			return []byte{0x00, 0x00, 0x00, 0x04}, nil
		},
		func([]byte, Context) (AliveResponse, error) {
			return AliveResponse{}, nil
		},
	)
}
